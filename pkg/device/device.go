package device

import (
	"errors"
	"fmt"
	"math"
)

// Kind selects the solver used for a junction.
type Kind int

const (
	KindPDD             Kind = iota // Poisson drift-diffusion
	KindDepletion                   // Depletion approximation
	KindDetailedBalance             // Detailed balance limit
)

var ErrUnsupportedKind = errors.New("unsupported junction kind")

func (k Kind) String() string {
	switch k {
	case KindPDD:
		return "PDD"
	case KindDepletion:
		return "DA"
	case KindDetailedBalance:
		return "DB"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the short tags used in device decks.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "pdd", "PDD":
		return KindPDD, nil
	case "da", "DA", "depletion":
		return KindDepletion, nil
	case "db", "DB", "detailed-balance":
		return KindDetailedBalance, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// ModelParam is the raw parameter bag of a .material card.
type ModelParam struct {
	Type   string
	Name   string
	Params map[string]float64
}

// Surface holds the recombination velocities (m/s) of one contact.
// +Inf makes the contact ohmic for that carrier.
type Surface struct {
	Sn float64
	Sp float64
}

func Ohmic() Surface {
	return Surface{Sn: math.Inf(1), Sp: math.Inf(1)}
}

func (s Surface) OhmicN() bool { return math.IsInf(s.Sn, 1) }
func (s Surface) OhmicP() bool { return math.IsInf(s.Sp, 1) }
