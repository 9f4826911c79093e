// Package memory classifies completed turns and writes the resulting
// episodic, semantic, relationship, and working memory entries. Every
// exported entry point swallows its own errors: a memory failure must
// never block the agent loop.
package memory

import (
	"automaton/internal/store"
	"automaton/internal/tools"
)

// importanceTable fixes the episodic importance score per classification.
var importanceTable = map[store.Classification]float64{
	store.ClassStrategic:     0.9,
	store.ClassProductive:    0.7,
	store.ClassCommunication: 0.6,
	store.ClassError:         0.8,
	store.ClassMaintenance:   0.3,
	store.ClassIdle:          0.1,
}

// Classify derives a turn's memory classification from its tool calls
// and thinking text, applying the rules in fixed precedence order.
func Classify(t store.Turn) store.Classification {
	if len(t.ToolCalls) == 0 && t.Thinking == "" {
		return store.ClassIdle
	}
	for _, tc := range t.ToolCalls {
		if tc.Error != "" {
			return store.ClassError
		}
	}
	for _, tc := range t.ToolCalls {
		if tools.CommunicationTools[tc.Name] {
			return store.ClassCommunication
		}
	}
	for _, tc := range t.ToolCalls {
		if tools.StrategicTools[tc.Name] {
			return store.ClassStrategic
		}
	}
	if tools.IsIdleOnly(toolNames(t.ToolCalls)) {
		return store.ClassMaintenance
	}
	return store.ClassProductive
}

// Importance returns the fixed episodic-write importance for a
// classification.
func Importance(c store.Classification) float64 {
	return importanceTable[c]
}

func toolNames(calls []store.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}
