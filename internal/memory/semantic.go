package memory

import "strings"

const systemSynopsisMaxChars = 500

// semanticFactKeys maps a tool name to the semantic-memory key its
// result is stored under.
var semanticFactKeys = map[string]string{
	"check_credits":      "financial.last_known_balance",
	"check_usdc_balance": "financial.usdc_balance",
	"system_synopsis":    "self.system_synopsis",
	"discover_agents":    "environment.known_agents",
}

// extractSemanticFact returns the (key, value) semantic write for a
// successful tool result, or ok=false if the tool doesn't produce one.
func extractSemanticFact(toolName, result string) (key, value string, ok bool) {
	key, known := semanticFactKeys[toolName]
	if !known {
		return "", "", false
	}
	value = result
	if toolName == "system_synopsis" && len(value) > systemSynopsisMaxChars {
		value = value[:systemSynopsisMaxChars]
	}
	return key, strings.TrimSpace(value), true
}
