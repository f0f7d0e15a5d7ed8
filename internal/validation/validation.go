// Package validation provides centralized input validation for croft.
package validation

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// =============================================================================
// Tag Validation
// =============================================================================

// TagRules defines the validation rules for short string tags such as
// field identifiers, sensor types, and units.
type TagRules struct {
	MinLength int
	MaxLength int
}

// FieldIDRules returns the rules for field identifiers.
func FieldIDRules() TagRules {
	return TagRules{MinLength: 1, MaxLength: 50}
}

// SensorTypeRules returns the rules for sensor type tags.
func SensorTypeRules() TagRules {
	return TagRules{MinLength: 1, MaxLength: 50}
}

// UnitRules returns the rules for measurement units.
func UnitRules() TagRules {
	return TagRules{MinLength: 1, MaxLength: 20}
}

// ValidateTag validates a tag value according to the given rules.
// Length bounds are counted in characters, not bytes, so multi-byte
// tags coming from device firmware are not over-rejected.
func ValidateTag(value string, rules TagRules) error {
	n := utf8.RuneCountInString(value)
	if n < rules.MinLength {
		return fmt.Errorf("too short: minimum %d characters required", rules.MinLength)
	}
	if n > rules.MaxLength {
		return fmt.Errorf("too long: maximum %d characters allowed", rules.MaxLength)
	}

	for i, r := range value {
		if r < 32 || r == 127 {
			return fmt.Errorf("control character at position %d", i)
		}
	}

	return nil
}

// =============================================================================
// Value Validation
// =============================================================================

// ValidateFinite rejects NaN and infinite reading values. The store and the
// aggregation math both assume finite float64 inputs.
func ValidateFinite(value float64) error {
	if math.IsNaN(value) {
		return fmt.Errorf("value is NaN")
	}
	if math.IsInf(value, 0) {
		return fmt.Errorf("value is infinite")
	}
	return nil
}
