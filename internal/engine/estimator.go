package engine

import "unicode/utf8"

// TokenEstimator approximates the cost of a piece of text in model
// tokens. Implementations must be pure, deterministic and monotonic in
// text length; estimation never fails.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator divides character count by a fixed ratio. One token per
// three characters is a crude average that holds up tolerably across
// Latin and Cyrillic text.
type CharEstimator struct {
	CharsPerToken int
}

func (e CharEstimator) Estimate(text string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = 3
	}
	return utf8.RuneCountInString(text) / per
}
