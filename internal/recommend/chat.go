package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"so101-builder/internal/catalog"
	"so101-builder/internal/wizard"
	"so101-builder/pkg/apperr"
)

// Chat action types.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionSwap   = "swap"
)

// ChatAction is a suggested change to the current recommendation. Actions
// are suggestions for the client to apply; chat never mutates stored state.
type ChatAction struct {
	Type            string `json:"type"`
	ComponentID     int64  `json:"component_id"`
	WithComponentID *int64 `json:"with_component_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// ChatReply is the answer to a follow-up question about a setup.
type ChatReply struct {
	Reply   string       `json:"reply"`
	Actions []ChatAction `json:"actions,omitempty"`
}

const chatSystemPrompt = `You are a helpful assistant for the SO-101 robot arm setup builder.

You have deep expertise in SO-101 assembly and configuration, the LeRobot
software framework, Feetech STS3215 servo motors, and robot arm components
(controllers, power supplies, cameras).

Guidelines:
1. Be concise but thorough
2. Reference specific component names and catalog ids when relevant
3. If unsure, say so; suggest the LeRobot documentation for assembly detail
4. Consider the user's experience level in your explanations

You may suggest changes to the current recommendation. Respond with a single
JSON object:
{
  "reply": "<your answer>",
  "actions": [
    {"type": "add|remove|swap", "component_id": <catalog id>, "with_component_id": <catalog id, swap only>, "reason": "<short reason>"}
  ]
}
Use an empty actions array when no change is suggested. "remove" and "swap"
must reference a component currently in the recommendation; "add" and the
swap replacement must reference catalog ids from the context below.`

// Chat answers a follow-up question grounded in the stored recommendation
// and the catalog. Invalid suggested actions are dropped, not errors.
func (e *Engine) Chat(ctx context.Context, setupID uuid.UUID, message string) (*ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.Validation("message is required")
	}

	setup, err := e.setups.Get(ctx, setupID)
	if err != nil {
		return nil, err
	}
	if len(setup.Recommendation) == 0 {
		return nil, apperr.Conflict("setup %s has no recommendation yet; generate one before chatting", setupID)
	}

	var rec Recommendation
	if err := json.Unmarshal(setup.Recommendation, &rec); err != nil {
		return nil, apperr.Internal(err, "stored recommendation for setup %s is unreadable", setupID)
	}

	listing, err := e.catalog.List(ctx, catalog.ListFilter{Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("loading catalog for chat context: %w", err)
	}

	prompt := buildChatPrompt(setup.Profile, &rec, listing.Components, message)

	raw, err := e.llm.CompleteWithSystem(ctx, chatSystemPrompt, prompt)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUpstream {
			return nil, err
		}
		return nil, apperr.Upstream(err, "chat model call failed")
	}

	reply := parseChatReply(raw)
	reply.Actions = e.filterActions(setupID, reply.Actions, &rec, listing.Components)
	return reply, nil
}

// parseChatReply decodes the model's JSON reply, falling back to treating
// the whole text as a plain answer.
func parseChatReply(raw string) *ChatReply {
	unfenced := stripCodeFences(raw)

	var reply ChatReply
	if err := json.Unmarshal([]byte(unfenced), &reply); err == nil && reply.Reply != "" {
		return &reply
	}
	return &ChatReply{Reply: strings.TrimSpace(raw)}
}

// filterActions drops suggestions that do not make sense against the current
// recommendation or catalog.
func (e *Engine) filterActions(setupID uuid.UUID, actions []ChatAction, rec *Recommendation, components []catalog.ComponentWithPricing) []ChatAction {
	if len(actions) == 0 {
		return nil
	}

	inCatalog := make(map[int64]bool, len(components))
	for _, c := range components {
		inCatalog[c.ID] = true
	}
	inRec := make(map[int64]bool, len(rec.Components))
	for _, line := range rec.Components {
		inRec[line.ComponentID] = true
	}

	kept := make([]ChatAction, 0, len(actions))
	for _, a := range actions {
		ok := false
		switch a.Type {
		case ActionAdd:
			ok = inCatalog[a.ComponentID] && !inRec[a.ComponentID]
		case ActionRemove:
			ok = inRec[a.ComponentID]
		case ActionSwap:
			ok = inRec[a.ComponentID] && a.WithComponentID != nil && inCatalog[*a.WithComponentID]
		}
		if !ok {
			e.log.Warn().
				Str("setup_id", setupID.String()).
				Str("action", a.Type).
				Int64("component_id", a.ComponentID).
				Msg("dropping invalid chat action")
			continue
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// buildChatPrompt renders the setup context and the user's question.
func buildChatPrompt(profile wizard.Profile, rec *Recommendation, components []catalog.ComponentWithPricing, message string) string {
	var sb strings.Builder

	sb.WriteString("## User Profile\n")
	fmt.Fprintf(&sb, "- Experience level: %s\n", orUnspecified(profile.Experience))
	if profile.BudgetUSD != nil {
		fmt.Fprintf(&sb, "- Budget: $%s USD\n", profile.BudgetUSD.StringFixed(0))
	}
	fmt.Fprintf(&sb, "- Use case: %s\n", orUnspecified(profile.UseCase))
	fmt.Fprintf(&sb, "- Arm configuration: %s\n", orUnspecified(profile.ArmType))

	sb.WriteString("\n## Current Recommendation\n")
	for _, line := range rec.Components {
		fmt.Fprintf(&sb, "- id=%d [%s] %s x%d (%s)\n",
			line.ComponentID, line.Category, line.ComponentName, line.Quantity, line.Priority)
	}
	if rec.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", rec.Summary)
	}

	sb.WriteString("\n## Available Catalog\n")
	for _, c := range sortedByCategory(components) {
		fmt.Fprintf(&sb, "- id=%d [%s] %s", c.ID, c.CategorySlug, c.Name)
		if c.LowestPrice != nil {
			fmt.Fprintf(&sb, " (from $%s)", c.LowestPrice.StringFixed(2))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Question\n")
	sb.WriteString(message)
	sb.WriteString("\n")
	return sb.String()
}
