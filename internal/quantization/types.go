package quantization

// Type identifies how slot vectors are represented in an index.
// The numeric values are persisted and must not change.
type Type uint8

const (
	TypeNone Type = iota
	TypePQ
)

// String returns the string representation of the quantization type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypePQ:
		return "PQ"
	default:
		return "Unknown"
	}
}
