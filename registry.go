package bmff

import (
	"io"
)

// Decoder turns a length-bounded payload into a BoxValue. The payload slice
// is already bounded by the containing box's declared data length; a
// decoder must not read past it, though reading less is allowed.
type Decoder func(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error)

// Registry maps a box key to the decoder responsible for its payload. It
// is built once at startup and never mutated afterward; concurrent reads
// are safe.
type Registry struct {
	byType map[BoxType]Decoder
}

// NewRegistry returns an empty registry. Most callers use DefaultRegistry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[BoxType]Decoder)}
}

// Register adds or replaces the decoder for a box type.
func (reg *Registry) Register(t BoxType, d Decoder) {
	reg.byType[t] = d
}

// Lookup returns the decoder for key, or ErrNoDecoder if none is registered.
// UUID-keyed boxes never have a decoder: they are left undecoded.
func (reg *Registry) Lookup(key BoxKey) (Decoder, error) {
	if key.IsUUID() {
		return nil, ErrNoDecoder
	}
	d, ok := reg.byType[key.Type]
	if !ok {
		return nil, ErrNoDecoder
	}
	return d, nil
}

// defaultRegistry is populated once at package initialization, matching
// the "constructed once and treated as immutable" resource policy.
var defaultRegistry = buildDefaultRegistry()

// DefaultRegistry returns the package's built-in registry of structured
// and text decoders.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func buildDefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(TypeFtyp, decodeFtyp)
	reg.Register(TypeStts, decodeStts)
	reg.Register(TypeCtts, decodeCtts)
	reg.Register(TypeStsc, decodeStsc)
	reg.Register(TypeStsz, decodeStsz)
	reg.Register(TypeStz2, decodeStz2)
	reg.Register(TypeStss, decodeStss)
	reg.Register(TypeStco, decodeStco)
	reg.Register(TypeCo64, decodeCo64)
	reg.Register(TypeElst, decodeElst)
	reg.Register(TypeMdhd, decodeMdhd)
	reg.Register(TypeHdlr, decodeHdlr)
	reg.Register(TypeTkhd, decodeTkhd)
	reg.Register(TypeStsd, decodeStsd)
	return reg
}

// decodeNode reads ref's payload from r and runs it through the default
// registry, implementing C4's dispatch. It bounds its allocation to
// ref.DataLen, which the tree walker has already clamped to the box's
// parent region, preventing hostile-input blowups.
func decodeNode(r io.ReadSeeker, ref BoxRef) (BoxValue, error) {
	key := ref.Header.Key
	dec, err := defaultRegistry.Lookup(key)
	if err != nil {
		return BoxValue{}, err
	}

	if ref.DataLen < 0 {
		return BoxValue{}, &DecodeError{BoxType: key.Type, Kind: Short, Reason: "negative data length"}
	}

	payload := make([]byte, ref.DataLen)
	if ref.DataLen > 0 {
		if _, err := r.Seek(ref.DataOffset, io.SeekStart); err != nil {
			return BoxValue{}, wrapf(err, "seek to payload")
		}
		if _, err := io.ReadFull(r, payload); err != nil {
			return BoxValue{}, &DecodeError{BoxType: key.Type, Kind: Short, Reason: "payload shorter than declared"}
		}
	}

	return dec(payload, ref.Header, ref.Version, ref.Flags)
}

func need(payload []byte, n int, t BoxType) error {
	if len(payload) < n {
		return &DecodeError{BoxType: t, Kind: Short, Reason: "payload shorter than required"}
	}
	return nil
}
