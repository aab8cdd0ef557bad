package services

import "fmt"

// Completion tracks how much of a session's required work is done.
type Completion struct {
	// Required questions reachable from the graph's first question
	RequiredTotal int
	// Required reachable questions with a recorded answer
	RequiredAnswered int
}

// CompletionPercent returns the answered share of required questions as a
// whole percentage. A questionnaire with nothing required counts as complete.
func (c *Completion) CompletionPercent() (int, error) {
	if c.RequiredTotal == 0 {
		return 100, nil
	}

	if c.RequiredAnswered > c.RequiredTotal {
		return 0, fmt.Errorf("cannot compute completion with answered: %d exceeding required total: %d", c.RequiredAnswered, c.RequiredTotal)
	}

	ratio := (float64(c.RequiredAnswered) / float64(c.RequiredTotal)) * 100

	return int(ratio), nil
}
