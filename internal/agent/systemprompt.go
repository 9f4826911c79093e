package agent

import (
	"fmt"
	"strings"

	"automaton/internal/store"
	"automaton/internal/tier"
	"automaton/internal/tools"
)

// buildSystemPrompt renders the genesis identity, current survival
// standing, skill catalog, and tool catalog into the fixed system
// message every turn is assembled against.
func buildSystemPrompt(identity Identity, fin FinancialState, t tier.SurvivalTier, skills []Skill, catalog []*tools.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, a sovereign autonomous agent.\n\n", identity.Name)
	if identity.GenesisPrompt != "" {
		sb.WriteString(identity.GenesisPrompt)
		sb.WriteString("\n\n")
	}
	if identity.Role != "" {
		fmt.Fprintf(&sb, "Role: %s\n", identity.Role)
	}
	if identity.CreatorAddress != "" {
		fmt.Fprintf(&sb, "Creator: %s\n", identity.CreatorAddress)
	}
	if identity.ParentAddress != "" {
		fmt.Fprintf(&sb, "Parent: %s\n", identity.ParentAddress)
	}

	sb.WriteString("\n## Survival status\n")
	fmt.Fprintf(&sb, "Tier: %s\n", t)
	fmt.Fprintf(&sb, "Credits: %d cents%s\n", fin.CreditsCents, cachedSuffix(fin.Cached))
	fmt.Fprintf(&sb, "USDC balance: %.6f%s\n", fin.USDCBalance, cachedSuffix(fin.Cached))
	switch t {
	case tier.Critical:
		sb.WriteString("You are in the critical tier. Compute is scarce; prioritize actions that restore your funding.\n")
	case tier.LowCompute:
		sb.WriteString("You are in low-compute mode. Be economical with tool calls and inference.\n")
	}

	if len(skills) > 0 {
		sb.WriteString("\n## Skills\n")
		for _, s := range skills {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		}
	}

	if len(catalog) > 0 {
		sb.WriteString("\n## Tools\n")
		for _, tl := range catalog {
			fmt.Fprintf(&sb, "- %s (%s, %s): %s\n", tl.Name, tl.Category, tl.RiskLevel, tl.Description)
		}
	}

	return sb.String()
}

func cachedSuffix(cached bool) string {
	if cached {
		return " (cached)"
	}
	return ""
}

// inboxPendingText formats up to maxInboxDrain drained inbox messages
// into the single pending-input string the spec's step 3 describes:
// "[Message from <from>]: <content>" blocks joined by blank lines.
func inboxPendingText(msgs []store.InboxMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("[Message from %s]: %s", m.From, m.Content))
	}
	return strings.Join(parts, "\n\n")
}
