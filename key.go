package bmff

import "github.com/google/uuid"

// BoxKey identifies a box either by its 4-byte type, or, when the type is
// "uuid", by the 16-byte extended type that follows the header.
type BoxKey struct {
	Type FourCC
	UUID uuid.UUID
	isUUID bool
}

// FourCCKey builds a BoxKey from an ordinary 4-byte box type.
func FourCCKey(t FourCC) BoxKey {
	return BoxKey{Type: t}
}

// UUIDKey builds a BoxKey from a 16-byte extended type.
func UUIDKey(b [16]byte) BoxKey {
	return BoxKey{Type: TypeUuid, UUID: uuid.UUID(b), isUUID: true}
}

// IsUUID reports whether the key carries an extended UUID type.
func (k BoxKey) IsUUID() bool {
	return k.isUUID
}

// String renders the four-character code, or the canonical hyphenated UUID
// form when the key carries an extended type.
func (k BoxKey) String() string {
	if k.isUUID {
		return k.UUID.String()
	}
	return k.Type.String()
}
