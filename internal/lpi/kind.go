package lpi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned for an unrecognised controller kind.
var ErrUnknownKind = errors.New("unknown controller type")

// Kind selects which terms of the controller are active.
type Kind string

const (
	KindLPI Kind = "lpi" // proportional + leaky integral
	KindPI  Kind = "pi"  // proportional + integral, no leak
	KindP   Kind = "p"   // proportional only
)

// ValidKinds lists every supported controller kind.
var ValidKinds = []Kind{KindLPI, KindPI, KindP}

// ParseKind parses a controller kind, ignoring case and surrounding space.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidKinds {
		if k == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w %q: expected lpi, pi or p", ErrUnknownKind, s)
}

// NumParams is the number of free model parameters fitted for this kind
// (damping plus the controller terms it has).
func (k Kind) NumParams() int {
	switch k {
	case KindLPI:
		return 4
	case KindPI:
		return 3
	case KindP:
		return 2
	}
	return 0
}
