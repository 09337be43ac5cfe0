package engine

import (
	"strings"

	"Tale-Weaver/server/internal/models"
)

const (
	// Histories at or below this length are never compacted, which
	// avoids oscillation on short sessions.
	compactMinTurns = 6

	defaultTailSize  = 8
	summaryKeepLines = 5
	playerClipRunes  = 100
	gmClipRunes      = 200
)

// SummaryHeader prefixes every synthesized summary turn.
const SummaryHeader = "SUMMARY OF EARLIER EVENTS:"

// ContextCompactor decides which prior turns of a long conversation are
// forwarded to the model under a token budget. It is a bounded O(n)
// single-pass heuristic, not true summarization: older turns collapse
// into one system turn of clipped one-liners while the recent tail is
// kept verbatim.
type ContextCompactor struct {
	Budget    int
	TailSize  int
	Estimator TokenEstimator
}

func NewContextCompactor(budget int) *ContextCompactor {
	return &ContextCompactor{
		Budget:    budget,
		TailSize:  defaultTailSize,
		Estimator: CharEstimator{},
	}
}

// Compact returns the turn sequence to submit upstream. The input is
// returned unchanged when it is short or already within budget. It never
// fails on malformed input.
func (c *ContextCompactor) Compact(history []models.Turn) []models.Turn {
	if len(history) <= compactMinTurns {
		return history
	}

	total := 0
	for _, turn := range history {
		total += c.Estimator.Estimate(turn.Content)
	}
	if total <= c.Budget {
		return history
	}

	tailSize := c.TailSize
	if tailSize <= 0 {
		tailSize = defaultTailSize
	}
	if len(history) <= tailSize {
		return history
	}

	head := history[:len(history)-tailSize]
	tail := history[len(history)-tailSize:]

	// An input that was already compacted carries its summary as the
	// single head turn; keep it instead of summarizing a summary.
	if len(head) == 1 && isSummaryTurn(head[0]) {
		return history
	}

	out := make([]models.Turn, 0, tailSize+1)
	out = append(out, c.summarize(head))
	out = append(out, tail...)
	return out
}

func isSummaryTurn(turn models.Turn) bool {
	return turn.Role == models.RoleSystem && strings.HasPrefix(turn.Content, SummaryHeader)
}

// summarize collapses the head of a conversation into one system turn:
// a clipped line per turn, keeping only the most recent few.
func (c *ContextCompactor) summarize(head []models.Turn) models.Turn {
	lines := make([]string, 0, len(head))
	for _, turn := range head {
		if turn.Role == models.RoleUser {
			lines = append(lines, "Player: "+clip(turn.Content, playerClipRunes))
		} else {
			lines = append(lines, "GM: "+clip(turn.Content, gmClipRunes))
		}
	}
	if len(lines) > summaryKeepLines {
		lines = lines[len(lines)-summaryKeepLines:]
	}
	return models.Turn{
		Role:    models.RoleSystem,
		Content: SummaryHeader + "\n" + strings.Join(lines, "\n"),
	}
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
