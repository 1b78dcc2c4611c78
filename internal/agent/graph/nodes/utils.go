package nodes

import (
	"github.com/metachat-core-poc/server/internal/agent/model"
)

const (
	DefaultMaxMongoCalls = 4
	DefaultMaxScriptRuns = 3
)

// ===== Small helpers to keep handlers simple/readable =====
// normalizeCap returns a sane default when the provided value is invalid.
func normalizeCap(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// checkAndMarkMongoLimit evaluates whether another tool call would exceed the
// limit and, if so, marks the state accordingly. Returns true when marked now.
func checkAndMarkMongoLimit(state *model.AppState, max int) bool {
	max = normalizeCap(max, DefaultMaxMongoCalls)
	if !state.MongoLimitReached && state.MongoCallCount >= max {
		state.MongoLimitReached = true
		return true
	}
	return false
}

// incrementMongoCallAndCheck increments the count and marks the state if it
// exceeds the limit after incrementing. Returns true when exceeded.
func incrementMongoCallAndCheck(state *model.AppState, max int) bool {
	max = normalizeCap(max, DefaultMaxMongoCalls)
	state.MongoCallCount++
	if state.MongoCallCount > max {
		state.MongoLimitReached = true
		return true
	}
	return false
}
