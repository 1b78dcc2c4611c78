package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metachat-core-poc/server/internal/agent/model"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.Signal
		wantErr bool
	}{
		{name: "plain mongodb", content: "mongodb", want: model.SignalRouteMongo},
		{name: "plain python", content: "python", want: model.SignalRoutePython},
		{name: "uppercase with whitespace", content: "  MONGODB \n", want: model.SignalRouteMongo},
		{name: "fenced label", content: "```\npython\n```", want: model.SignalRoutePython},
		{name: "quoted label", content: `"mongodb"`, want: model.SignalRouteMongo},
		{name: "trailing period", content: "python.", want: model.SignalRoutePython},
		{name: "label with trailing explanation", content: "mongodb\nbecause the question is a lookup", want: model.SignalRouteMongo},
		{name: "unrecognized label", content: "sql", want: model.SignalRouteUnknown, wantErr: true},
		{name: "empty content", content: "", want: model.SignalRouteUnknown, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoute(tt.content)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
				var ue *model.ErrUnrecognizedLabel
				assert.True(t, errors.As(err, &ue))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseRunDecision(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.Signal
		wantErr bool
	}{
		{name: "execute", content: "execute", want: model.SignalExecute},
		{name: "yes means execute", content: "yes", want: model.SignalExecute},
		{name: "summarize", content: "summarize", want: model.SignalSummarize},
		{name: "no means summarize", content: "No", want: model.SignalSummarize},
		{name: "unrecognized defaults to summarize", content: "maybe later", want: model.SignalSummarize, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRunDecision(tt.content)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseRevision(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.Signal
		wantErr bool
	}{
		{name: "revise", content: "revise", want: model.SignalRevise},
		{name: "reformat means revise", content: "reformat", want: model.SignalRevise},
		{name: "finalize", content: "finalize", want: model.SignalFinalize},
		{name: "done means finalize", content: "done", want: model.SignalFinalize},
		{name: "unrecognized defaults to finalize", content: "perhaps", want: model.SignalFinalize, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRevision(tt.content)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizeLabelCapsOversizedInput(t *testing.T) {
	huge := make([]byte, 8<<10)
	for i := range huge {
		huge[i] = 'a'
	}
	got, err := ParseRoute(string(huge))
	require.Error(t, err)
	assert.Equal(t, model.SignalRouteUnknown, got)
}
