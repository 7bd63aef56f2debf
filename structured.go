package bmff

// BoxValueKind discriminates the BoxValue tagged union.
type BoxValueKind int

const (
	BoxValueBytes BoxValueKind = iota
	BoxValueText
	BoxValueStructured
	BoxValueError
)

// BoxValue is the result of running a box's payload through the decoder
// registry: either raw bytes, display text, a typed structured decoding,
// or (BoxValueError) the rendered message from a failed decode.
type BoxValue struct {
	Kind       BoxValueKind
	Bytes      []byte
	Text       string
	Structured StructuredData
}

// StructuredData is implemented by every typed decoding in §4.5. It is a
// closed set: callers type-switch on the concrete struct. Entry types
// (SttsEntry, CttsEntry, StscEntry, ElstEntry) are the ones already used
// by the iterators in iter.go; the Data structs here are the registry's
// materialized, whole-box view of what those iterators stream.

type StructuredData interface {
	isStructuredData()
}

// SttsData is the decoded stts box.
type SttsData struct {
	Version uint8
	Flags   uint32
	Entries []SttsEntry
}

func (SttsData) isStructuredData() {}

// CttsData is the decoded ctts box. Each entry's Offset is always treated as
// signed downstream regardless of the wire version, per the spec's design
// note: a v0 unsigned word must have its bit pattern preserved so
// two's-complement-encoded negative offsets survive.
type CttsData struct {
	Version uint8
	Flags   uint32
	Entries []CttsEntry
}

func (CttsData) isStructuredData() {}

// StscData is the decoded stsc box.
type StscData struct {
	Version uint8
	Flags   uint32
	Entries []StscEntry
}

func (StscData) isStructuredData() {}

// StszData is the decoded stsz box. When SampleSize != 0 every sample
// shares that size and SampleSizesRaw is empty.
type StszData struct {
	Version        uint8
	Flags          uint32
	SampleSize     uint32
	SampleCount    uint32
	SampleSizesRaw []uint32
}

func (StszData) isStructuredData() {}

// SampleSizes returns the per-sample size sequence, expanding the fixed
// SampleSize case so stsz and stz2 can be consumed uniformly.
func (d StszData) SampleSizes() []uint32 {
	if d.SampleSize != 0 {
		sizes := make([]uint32, d.SampleCount)
		for i := range sizes {
			sizes[i] = d.SampleSize
		}
		return sizes
	}
	return d.SampleSizesRaw
}

// Stz2Data is the decoded stz2 (compact sample size) box: reserved(3) +
// field_size(1) + sample_count(4), then sample_count entries packed at
// field_size bits (4, 8, or 16) each. It is consumed identically to
// StszData via SampleSizes().
type Stz2Data struct {
	Version     uint8
	Flags       uint32
	FieldSize   uint8
	SampleCount uint32
	Sizes       []uint32
}

func (Stz2Data) isStructuredData() {}

// SampleSizes satisfies the same uniform accessor as StszData.
func (d Stz2Data) SampleSizes() []uint32 {
	return d.Sizes
}

// StssData is the decoded stss (sync sample) box: 1-based, strictly
// increasing sample numbers. Absence of the box means every sample syncs.
type StssData struct {
	Version       uint8
	Flags         uint32
	SampleNumbers []uint32
}

func (StssData) isStructuredData() {}

// StcoData is the decoded stco (32-bit chunk offset) box.
type StcoData struct {
	Version      uint8
	Flags        uint32
	ChunkOffsets []uint32
}

func (StcoData) isStructuredData() {}

// Co64Data is the decoded co64 (64-bit chunk offset) box.
type Co64Data struct {
	Version      uint8
	Flags        uint32
	ChunkOffsets []uint64
}

func (Co64Data) isStructuredData() {}

// ElstData is the decoded elst (edit list) box.
type ElstData struct {
	Version uint8
	Flags   uint32
	Entries []ElstEntry
}

func (ElstData) isStructuredData() {}

// MdhdData is the decoded mdhd (media header) box.
type MdhdData struct {
	Version   uint8
	Timescale uint32
	Duration  uint64
	Language  uint16
}

func (MdhdData) isStructuredData() {}

// HdlrData is the decoded hdlr (handler reference) box.
type HdlrData struct {
	HandlerType FourCC
	Name        string
}

func (HdlrData) isStructuredData() {}

// TkhdData is the decoded tkhd (track header) box.
type TkhdData struct {
	Version  uint8
	Flags    uint32
	TrackID  uint32
	Duration uint64
	Width    uint32
	Height   uint32
}

func (TkhdData) isStructuredData() {}

// StsdSampleEntry records a sample description sub-box by offset/length
// rather than recursively decoding it; codec-aware consumers read it
// directly from the source.
type StsdSampleEntry struct {
	Type   FourCC
	Offset int64
	Length int64
}

// StsdData is the decoded stsd (sample description) box.
type StsdData struct {
	Version uint8
	Flags   uint32
	Entries []StsdSampleEntry
}

func (StsdData) isStructuredData() {}
