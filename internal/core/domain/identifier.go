package domain

import "strings"

// IdentifierKind tags how much of a national or organisation id is known.
type IdentifierKind string

const (
	// IdentifierNone means the record carried no usable identifier.
	IdentifierNone IdentifierKind = ""
	// IdentifierFull is a validated 11-digit (person) or 14-digit (organisation) number.
	IdentifierFull IdentifierKind = "full"
	// IdentifierPartial is a privacy-masked id with only 6 digits visible.
	IdentifierPartial IdentifierKind = "partial"
	// IdentifierSequential is a source-local surrogate key.
	IdentifierSequential IdentifierKind = "sequential"
)

// rank orders kinds for upgrades: Full beats Partial beats Sequential.
func (k IdentifierKind) rank() int {
	switch k {
	case IdentifierFull:
		return 3
	case IdentifierPartial:
		return 2
	case IdentifierSequential:
		return 1
	default:
		return 0
	}
}

// Identifier is the tagged identifier variant held by a canonical entity.
type Identifier struct {
	// Kind selects the variant.
	Kind IdentifierKind

	// Value holds the digits for Full and Partial, or the surrogate for Sequential.
	Value string

	// Mask is the redacted form as seen in the source (Partial only), e.g. "***.123.456-**".
	Mask string
}

// FullIdentifier builds a Full identifier from validated digits.
func FullIdentifier(digits string) Identifier {
	return Identifier{Kind: IdentifierFull, Value: digits}
}

// PartialIdentifier builds a Partial identifier from the visible fragment.
func PartialIdentifier(fragment, mask string) Identifier {
	return Identifier{Kind: IdentifierPartial, Value: fragment, Mask: mask}
}

// SequentialIdentifier builds a source-local surrogate, namespaced by source.
func SequentialIdentifier(namespace, value string) Identifier {
	return Identifier{Kind: IdentifierSequential, Value: namespace + ":" + value}
}

// IsZero reports whether no identifier is present.
func (i Identifier) IsZero() bool {
	return i.Kind == IdentifierNone || i.Value == ""
}

// IsFull reports whether the identifier is a validated full number.
func (i Identifier) IsFull() bool {
	return i.Kind == IdentifierFull && i.Value != ""
}

// Key is the lookup key for the identifier index.
func (i Identifier) Key() string {
	if i.IsZero() {
		return ""
	}
	return string(i.Kind) + ":" + i.Value
}

// String returns a display form.
func (i Identifier) String() string {
	switch i.Kind {
	case IdentifierPartial:
		if i.Mask != "" {
			return i.Mask
		}
		return "***" + i.Value + "**"
	case IdentifierNone:
		return ""
	default:
		return i.Value
	}
}

// Outranks reports whether i should replace other as an entity's identifier.
func (i Identifier) Outranks(other Identifier) bool {
	return i.Kind.rank() > other.Kind.rank()
}

// CompatibleWith reports whether two identifiers may belong to the same real-world entity.
// Only two different Full values, or a Partial fragment absent from a Full value,
// prove the entities are distinct.
func (i Identifier) CompatibleWith(other Identifier) bool {
	if i.IsZero() || other.IsZero() {
		return true
	}
	switch {
	case i.Kind == IdentifierFull && other.Kind == IdentifierFull:
		return i.Value == other.Value
	case i.Kind == IdentifierFull && other.Kind == IdentifierPartial:
		return strings.Contains(i.Value, other.Value)
	case i.Kind == IdentifierPartial && other.Kind == IdentifierFull:
		return strings.Contains(other.Value, i.Value)
	case i.Kind == IdentifierPartial && other.Kind == IdentifierPartial:
		return i.Value == other.Value
	default:
		return true
	}
}
