package rating

import "fmt"

// Outcome is the curator's judgement on a shown pair (a, b).
type Outcome int

const (
	AWins Outcome = iota + 1
	BWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case AWins:
		return "a_wins"
	case BWins:
		return "b_wins"
	case Draw:
		return "draw"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Valid reports whether o is one of the defined outcomes.
func (o Outcome) Valid() bool {
	return o == AWins || o == BWins || o == Draw
}
