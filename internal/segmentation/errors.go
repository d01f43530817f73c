package segmentation

import (
	"errors"
	"strings"
)

// Sentinel errors for audience resolution.
var (
	ErrAudienceNotFound = errors.New("audience not found")
	ErrInvalidRules     = errors.New("invalid audience rules")
)

// RulesError lists why a rule tree was rejected.
type RulesError struct {
	Problems []string
}

func (e *RulesError) Error() string {
	return ErrInvalidRules.Error() + ": " + strings.Join(e.Problems, "; ")
}

// Is makes errors.Is(err, ErrInvalidRules) match.
func (e *RulesError) Is(target error) bool {
	return target == ErrInvalidRules
}
