package message

import "fmt"

/* Variant selects which schema a node speaks on the wire
 * Strict is the corporate schema, Permissive the low-side one
 */
type Variant int

const (
	Strict Variant = iota + 1
	Permissive
)

// String returns the string representation of the variant
func (v Variant) String() string {
	switch v {
	case Strict:
		return "strict"
	case Permissive:
		return "permissive"
	default:
		return "unknown"
	}
}

// ParseVariant maps a node name or schema name to a Variant
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "strict", "corporate":
		return Strict, nil
	case "permissive", "lowside", "low-side", "low_side":
		return Permissive, nil
	default:
		return 0, fmt.Errorf("unknown schema variant: %q", s)
	}
}

// Validate checks if the variant is valid
func (v Variant) Validate() error {
	if v != Strict && v != Permissive {
		return fmt.Errorf("invalid schema variant: %d", v)
	}
	return nil
}
