package engine

import (
	"fmt"
	"strings"

	"github.com/duynguyendang/vultester/pkg/common/errors"
)

// Method selects a chaining strategy.
type Method string

const (
	Forward  Method = "forward"
	Backward Method = "backward"
	Mixed    Method = "mixed"
)

// Trace tags for the two phases of mixed chaining.
const (
	tagMixedForward  = "mixed_forward"
	tagMixedBackward = "mixed_backward"
)

// Methods lists the supported strategies.
var Methods = []Method{Forward, Backward, Mixed}

// ParseMethod converts a user supplied method name. Names are exact:
// "forward", "backward" or "mixed".
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	switch m {
	case Forward, Backward, Mixed:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (use forward, backward or mixed)", ErrUnknownMethod, s)
}

// Name is the human readable method name.
func (m Method) Name() string {
	switch m {
	case Forward:
		return "Forward Chaining"
	case Backward:
		return "Backward Chaining"
	case Mixed:
		return "Mixed Chaining"
	}
	return string(m)
}

// Validation errors, all matching errors.ErrInvalidInput.
var (
	ErrNoFacts       = fmt.Errorf("%w: no facts provided", errors.ErrInvalidInput)
	ErrEmptyFact     = fmt.Errorf("%w: empty fact", errors.ErrInvalidInput)
	ErrUnknownMethod = fmt.Errorf("%w: unknown chaining method", errors.ErrInvalidInput)
)

// ValidateFacts rejects an empty fact list or blank entries.
func ValidateFacts(facts []string) error {
	if len(facts) == 0 {
		return ErrNoFacts
	}
	for i, f := range facts {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w at index %d", ErrEmptyFact, i)
		}
	}
	return nil
}
