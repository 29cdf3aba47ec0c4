package rating

import "errors"

var (
	ErrInvalidBelief          = errors.New("invalid belief")
	ErrInvalidOutcome         = errors.New("invalid outcome")
	ErrInsufficientCandidates = errors.New("insufficient candidates")
)
