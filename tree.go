package bmff

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// BoxHeader is the fixed-shape prefix common to every box.
type BoxHeader struct {
	Key        BoxKey
	Start      int64 // offset of the first header byte
	Size       int64 // total size including header; 0 means "to end of region"
	HeaderSize int64 // 8, 16, 24, or 32
}

// BoxRef is one node in the parsed tree. Category discriminates which of
// the payload fields apply: Container populates Children; FullBox also
// populates Version/Flags; Leaf populates only DataOffset/DataLen. A box
// whose Header.Key carries an extended 16-byte type (Key.IsUUID()) is
// always a Leaf named by its UUID; the catalog is not consulted for it and
// there is no separate Unknown category.
type BoxRef struct {
	Header     BoxHeader
	Category   Category
	FullName   string
	Version    uint8
	Flags      uint32
	DataOffset int64
	DataLen    int64
	Children   []BoxRef
	Decoded    BoxValue
	HasDecoded bool
}

// Tree is the result of a full analysis pass: the forest of top-level
// boxes, plus any non-fatal warnings accumulated while walking them.
type Tree struct {
	Roots    []BoxRef
	Warnings []string
}

// readHeader reads one box header from r starting at the current position,
// implementing C1: 32-bit size, type, optional 64-bit largesize, optional
// 16-byte uuid extended type.
func readHeader(r io.ReadSeeker, regionEnd int64) (BoxHeader, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return BoxHeader{}, wrapf(err, "seek current position")
	}

	var buf8 [8]byte
	if _, err := io.ReadFull(r, buf8[:]); err != nil {
		return BoxHeader{}, &MalformedHeaderError{Offset: start, Reason: "header truncated before 8 bytes"}
	}

	size32 := binary.BigEndian.Uint32(buf8[0:4])
	var typ BoxType
	copy(typ[:], buf8[4:8])

	if size32 >= 2 && size32 < 8 {
		return BoxHeader{}, &MalformedHeaderError{Offset: start, Reason: "impossible size32 value"}
	}

	headerSize := int64(8)
	var size int64

	switch size32 {
	case 1:
		var buf8b [8]byte
		if _, err := io.ReadFull(r, buf8b[:]); err != nil {
			return BoxHeader{}, &MalformedHeaderError{Offset: start, Reason: "largesize truncated"}
		}
		size = int64(binary.BigEndian.Uint64(buf8b[:]))
		headerSize += 8
	case 0:
		size = 0
	default:
		size = int64(size32)
	}

	key := FourCCKey(typ)
	if typ == TypeUuid {
		var uuidBuf [16]byte
		if _, err := io.ReadFull(r, uuidBuf[:]); err != nil {
			return BoxHeader{}, &MalformedHeaderError{Offset: start, Reason: "uuid extended type truncated"}
		}
		key = UUIDKey(uuidBuf)
		headerSize += 16
	}

	if size > 0 && size < headerSize {
		return BoxHeader{}, &MalformedHeaderError{Offset: start, Reason: "declared size smaller than header"}
	}

	return BoxHeader{Key: key, Start: start, Size: size, HeaderSize: headerSize}, nil
}

// parseRange walks boxes in [start, end) and returns the parsed siblings,
// implementing C3. Without decode it reads only headers and the
// version/flags prefix of full boxes; with decode, buildNode also reads the
// payload of each node that is not a container or meta.
func parseRange(r io.ReadSeeker, start, end int64, decode bool, warnings *[]string) ([]BoxRef, error) {
	var refs []BoxRef
	pos := start

	for pos < end {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return refs, wrapf(err, "seek to %d", pos)
		}

		hdr, err := readHeader(r, end)
		if err != nil {
			return refs, err
		}

		boxEnd := hdr.Start + hdr.Size
		if hdr.Size == 0 {
			boxEnd = end
		}

		truncated := false
		if boxEnd > end {
			boxEnd = end
			truncated = true
		}

		ref, err := buildNode(r, hdr, boxEnd, decode, warnings)
		if err != nil {
			return refs, err
		}

		if truncated {
			msg := warnTruncated(hdr.Key.Type, hdr.Start, "declared extent exceeds parent region")
			*warnings = append(*warnings, msg)
			refs = append(refs, ref)
			break
		}

		refs = append(refs, ref)
		pos = boxEnd
	}

	return refs, nil
}

// buildNode classifies one box via C2 and recurses into it if it's a
// container (or the meta hybrid), per C3's dispatch.
func buildNode(r io.ReadSeeker, hdr BoxHeader, boxEnd int64, decode bool, warnings *[]string) (BoxRef, error) {
	category, name := Classify(hdr.Key.Type)
	if hdr.Key.IsUUID() {
		category, name = CategoryLeaf, hdr.Key.String()
	}

	dataStart := hdr.Start + hdr.HeaderSize

	ref := BoxRef{Header: hdr, Category: category, FullName: name}
	isChildBearing := category == CategoryContainer || IsMeta(hdr.Key.Type)

	switch {
	case category == CategoryContainer:
		children, err := parseRange(r, dataStart, boxEnd, decode, warnings)
		if err != nil {
			return ref, err
		}
		ref.Children = children
		ref.DataOffset = dataStart
		ref.DataLen = boxEnd - dataStart

	case IsMeta(hdr.Key.Type):
		// Hybrid: version+flags prefix, then children fill the remainder.
		version, flags, err := readFullBoxPrefix(r, dataStart, boxEnd)
		if err != nil {
			return ref, err
		}
		ref.Version, ref.Flags = version, flags
		childStart := dataStart + 4
		children, err := parseRange(r, childStart, boxEnd, decode, warnings)
		if err != nil {
			return ref, err
		}
		ref.Children = children
		ref.DataOffset = childStart
		ref.DataLen = boxEnd - childStart

	case category == CategoryFullBox:
		version, flags, err := readFullBoxPrefix(r, dataStart, boxEnd)
		if err != nil {
			return ref, err
		}
		ref.Version, ref.Flags = version, flags
		ref.DataOffset = dataStart + 4
		ref.DataLen = boxEnd - ref.DataOffset

	default:
		ref.DataOffset = dataStart
		ref.DataLen = boxEnd - dataStart
	}

	if decode && !isChildBearing {
		val, err := decodeNode(r, ref)
		if err == nil {
			ref.Decoded = val
			ref.HasDecoded = true
		} else if !errors.Is(err, ErrNoDecoder) {
			ref.Decoded = BoxValue{Kind: BoxValueError, Text: err.Error()}
			ref.HasDecoded = true
		}
	}

	return ref, nil
}

func readFullBoxPrefix(r io.ReadSeeker, dataStart, boxEnd int64) (version uint8, flags uint32, err error) {
	if boxEnd-dataStart < 4 {
		return 0, 0, &MalformedHeaderError{Offset: dataStart, Reason: "full box prefix truncated"}
	}
	if _, err = r.Seek(dataStart, io.SeekStart); err != nil {
		return 0, 0, wrapf(err, "seek to full box prefix")
	}
	var buf4 [4]byte
	if _, err = io.ReadFull(r, buf4[:]); err != nil {
		return 0, 0, &MalformedHeaderError{Offset: dataStart, Reason: "full box prefix truncated"}
	}
	vf := binary.BigEndian.Uint32(buf4[:])
	version = uint8(vf >> 24)
	flags = vf & 0x00ffffff
	return version, flags, nil
}

// Analyze parses the full box tree from r, implementing the analyze()
// public operation. When decode is true, every leaf/full-box node (meta
// excepted) that has a registered decoder gets its structured or textual
// payload, or its decode error, attached via the decoder registry; nodes
// without a decoder are left undecoded.
func Analyze(r io.ReadSeeker, decode bool) (*Tree, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, wrapf(err, "seek to end")
	}

	var warnings []string
	roots, err := parseRange(r, 0, end, decode, &warnings)
	if err != nil {
		return nil, err
	}

	return &Tree{Roots: roots, Warnings: warnings}, nil
}
