package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestResolvePricing(t *testing.T) {
	p := ResolvePricing("gemini-2.5-flash")
	assert.Equal(t, 0.30, p.InputPerM)
	assert.Equal(t, 2.50, p.OutputPerM)

	unknown := ResolvePricing("some-other-model")
	assert.Zero(t, unknown.InputPerM)
	assert.Zero(t, unknown.OutputPerM)
}

func TestComputeCost(t *testing.T) {
	usage := &schema.TokenUsage{
		PromptTokens:     1_000_000,
		CompletionTokens: 500_000,
		TotalTokens:      1_500_000,
	}
	in, out, total := ComputeCost(usage, Pricing{InputPerM: 0.30, OutputPerM: 2.50})
	assert.InDelta(t, 0.30, in, 1e-9)
	assert.InDelta(t, 1.25, out, 1e-9)
	assert.InDelta(t, 1.55, total, 1e-9)
}

func TestComputeCostNilUsage(t *testing.T) {
	in, out, total := ComputeCost(nil, Pricing{InputPerM: 1, OutputPerM: 1})
	assert.Zero(t, in)
	assert.Zero(t, out)
	assert.Zero(t, total)
}
