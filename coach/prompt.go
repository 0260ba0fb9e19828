/*
Package coach turns a momentum.CoachContext into a short motivational nudge.

PURPOSE:
  Two halves:
  - prompt.go: deterministic prompt assembly from the coach context
  - client.go: an OpenAI-compatible chat completion client

  Prompt assembly is pure string work with no I/O, so the nudge a given
  context produces is fully testable without a network.

SEE ALSO:
  - momentum/aggregate.go: where CoachContext is assembled
*/
package coach

import (
	"fmt"

	"github.com/aeterna/momentum-engine/momentum"
)

// systemPrompt frames the model as a terse, non-judgmental execution mentor.
const systemPrompt = `You are the user's Legacy Partner for AETERNA.

CONSTRAINTS:
- Maximum 100 words per response
- Never shame or guilt-trip
- Always connect today's action to 10-year legacy
- Provide ONE actionable next step
- Tone: Direct, confident, empowering

RESPONSE FORMAT:
[Observation] → [Identity Affirmation] → [Single Action]

STYLE:
- Speak like a trusted mentor who sees their potential
- Reference their vision statement naturally
- Use "you" not "the user"
- End with a clear, specific action`

// SystemPrompt returns the fixed system message for the coach.
func SystemPrompt() string { return systemPrompt }

// UserMessage renders the context into the user message. The output is
// deterministic: the same context always produces the same message.
func UserMessage(ctx momentum.CoachContext) string {
	return fmt.Sprintf(`Context:
- Vision: %q
- Current 12-Week Goal: %s
- Week %d of 12 (%d days remaining)
- Weekly Score: %d%%
- Today's Score: %d%%
- Status: %s

Provide your coaching nudge (max 100 words):`,
		ctx.Vision, ctx.CurrentGoal,
		ctx.CurrentWeek, ctx.RemainingDays,
		ctx.WeeklyScore, ctx.DailyScore,
		streakText(ctx))
}

// streakText describes momentum in the user's terms. A winning streak takes
// precedence; a shielded week reads as recovery, not failure.
func streakText(ctx momentum.CoachContext) string {
	switch {
	case ctx.Streak > 0:
		return fmt.Sprintf("%d-day winning streak", ctx.Streak)
	case ctx.IsShielded:
		return "shielded week (recovery mode)"
	default:
		return "building momentum"
	}
}
