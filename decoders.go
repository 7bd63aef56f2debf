package bmff

import "strings"

// decodeFtyp renders a text summary, matching C4's "a few text decoders"
// example verbatim: "major_brand / minor_version / [compatible...]".
func decodeFtyp(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 8, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	info := ReadFtyp(payload)

	var sb strings.Builder
	sb.WriteString(BoxType(info.MajorBrand).String())
	sb.WriteString(" / ")
	sb.WriteString(itoa(int64(info.MinorVersion)))
	sb.WriteString(" / [")
	for i, c := range info.Compatible {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(BoxType(c).String())
	}
	sb.WriteString("]")

	return BoxValue{Kind: BoxValueText, Text: sb.String()}, nil
}

func decodeStts(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewSttsIter(payload)
	entries := make([]SttsEntry, 0, it.Count())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	if uint32(len(entries)) != it.Count() {
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer entries than declared"}
	}
	return BoxValue{Kind: BoxValueStructured, Structured: SttsData{Version: version, Flags: flags, Entries: entries}}, nil
}

func decodeCtts(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewCttsIter(payload, version)
	entries := make([]CttsEntry, 0, it.Count())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	if uint32(len(entries)) != it.Count() {
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer entries than declared"}
	}
	return BoxValue{Kind: BoxValueStructured, Structured: CttsData{Version: version, Flags: flags, Entries: entries}}, nil
}

func decodeStsc(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewStscIter(payload)
	entries := make([]StscEntry, 0, it.Count())
	var prevFirstChunk uint32
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if len(entries) == 0 {
			if e.FirstChunk < 1 {
				return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: InvalidField, Reason: "first_chunk must be at least 1"}
			}
		} else if e.FirstChunk <= prevFirstChunk {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: InvalidField, Reason: "first_chunk not strictly increasing"}
		}
		prevFirstChunk = e.FirstChunk
		entries = append(entries, e)
	}
	if uint32(len(entries)) != it.Count() {
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer entries than declared"}
	}
	return BoxValue{Kind: BoxValueStructured, Structured: StscData{Version: version, Flags: flags, Entries: entries}}, nil
}

func decodeStsz(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 8, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewStszIter(payload)
	data := StszData{Version: version, Flags: flags, SampleSize: be.Uint32(payload[0:4]), SampleCount: it.Count()}
	if data.SampleSize == 0 {
		sizes := make([]uint32, 0, it.Count())
		for {
			s, ok := it.Next()
			if !ok {
				break
			}
			sizes = append(sizes, s)
		}
		if uint32(len(sizes)) != it.Count() {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer sample sizes than declared"}
		}
		data.SampleSizesRaw = sizes
	}
	return BoxValue{Kind: BoxValueStructured, Structured: data}, nil
}

// decodeStz2 decodes compact sample sizes: reserved(3) + field_size(1) +
// sample_count(4), then sample_count entries packed at field_size bits
// (4, 8, or 16) each. 4-bit entries are nibble-packed, MSB first. This
// fills the gap the source this spec was distilled from left unhandled.
func decodeStz2(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 8, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	fieldSize := payload[3]
	count := be.Uint32(payload[4:8])

	sizes := make([]uint32, 0, count)
	switch fieldSize {
	case 16:
		required := 8 + int(count)*2
		if len(payload) < required {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "stz2 16-bit sizes truncated"}
		}
		for i := uint32(0); i < count; i++ {
			off := 8 + int(i)*2
			sizes = append(sizes, uint32(be.Uint16(payload[off:])))
		}
	case 8:
		required := 8 + int(count)
		if len(payload) < required {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "stz2 8-bit sizes truncated"}
		}
		for i := uint32(0); i < count; i++ {
			sizes = append(sizes, uint32(payload[8+i]))
		}
	case 4:
		required := 8 + int(count+1)/2
		if len(payload) < required {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "stz2 4-bit sizes truncated"}
		}
		for i := uint32(0); i < count; i++ {
			b := payload[8+i/2]
			if i%2 == 0 {
				sizes = append(sizes, uint32(b>>4))
			} else {
				sizes = append(sizes, uint32(b&0x0f))
			}
		}
	default:
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: InvalidField, Reason: "unsupported stz2 field size"}
	}

	data := Stz2Data{Version: version, Flags: flags, FieldSize: fieldSize, SampleCount: count, Sizes: sizes}
	return BoxValue{Kind: BoxValueStructured, Structured: data}, nil
}

func decodeStss(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewUint32Iter(payload)
	nums := make([]uint32, 0, it.Count())
	var prev uint32
	for {
		n, ok := it.Next()
		if !ok {
			break
		}
		if len(nums) > 0 && n <= prev {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: InvalidField, Reason: "sample numbers not strictly increasing"}
		}
		prev = n
		nums = append(nums, n)
	}
	if uint32(len(nums)) != it.Count() {
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer sample numbers than declared"}
	}
	return BoxValue{Kind: BoxValueStructured, Structured: StssData{Version: version, Flags: flags, SampleNumbers: nums}}, nil
}

func decodeStco(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewUint32Iter(payload)
	offsets := make([]uint32, 0, it.Count())
	for {
		o, ok := it.Next()
		if !ok {
			break
		}
		offsets = append(offsets, o)
	}
	if uint32(len(offsets)) != it.Count() {
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer chunk offsets than declared"}
	}
	return BoxValue{Kind: BoxValueStructured, Structured: StcoData{Version: version, Flags: flags, ChunkOffsets: offsets}}, nil
}

func decodeCo64(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewCo64Iter(payload)
	offsets := make([]uint64, 0, it.Count())
	for {
		o, ok := it.Next()
		if !ok {
			break
		}
		offsets = append(offsets, o)
	}
	if uint32(len(offsets)) != it.Count() {
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer chunk offsets than declared"}
	}
	return BoxValue{Kind: BoxValueStructured, Structured: Co64Data{Version: version, Flags: flags, ChunkOffsets: offsets}}, nil
}

func decodeElst(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	it := NewElstIter(payload, version)
	entries := make([]ElstEntry, 0, it.Count())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	if uint32(len(entries)) != it.Count() {
		return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "fewer entries than declared"}
	}
	return BoxValue{Kind: BoxValueStructured, Structured: ElstData{Version: version, Flags: flags, Entries: entries}}, nil
}

func decodeMdhd(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	var timescale uint32
	var duration uint64
	var language uint16
	if version == 1 {
		if err := need(payload, 30, hdr.Key.Type); err != nil {
			return BoxValue{}, err
		}
		timescale = be.Uint32(payload[16:20])
		duration = be.Uint64(payload[20:28])
		language = be.Uint16(payload[28:30])
	} else {
		if err := need(payload, 18, hdr.Key.Type); err != nil {
			return BoxValue{}, err
		}
		timescale = be.Uint32(payload[8:12])
		duration = uint64(be.Uint32(payload[12:16]))
		language = be.Uint16(payload[16:18])
	}
	return BoxValue{Kind: BoxValueStructured, Structured: MdhdData{Version: version, Timescale: timescale, Duration: duration, Language: language}}, nil
}

func decodeHdlr(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 8, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	var t FourCC
	copy(t[:], payload[4:8])
	name := ""
	if len(payload) > 20 {
		end := 20
		for end < len(payload) && payload[end] != 0 {
			end++
		}
		name = string(payload[20:end])
	}
	return BoxValue{Kind: BoxValueStructured, Structured: HdlrData{HandlerType: t, Name: name}}, nil
}

// decodeTkhd parses the version-dependent tkhd layout for real, resolving
// the gap where track ID extraction was previously left stubbed.
func decodeTkhd(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	var trackID uint32
	var duration uint64
	var width, height uint32
	if version == 1 {
		if err := need(payload, 92, hdr.Key.Type); err != nil {
			return BoxValue{}, err
		}
		trackID = be.Uint32(payload[16:20])
		duration = be.Uint64(payload[24:32])
		width = be.Uint32(payload[84:88])
		height = be.Uint32(payload[88:92])
	} else {
		if err := need(payload, 80, hdr.Key.Type); err != nil {
			return BoxValue{}, err
		}
		trackID = be.Uint32(payload[8:12])
		duration = uint64(be.Uint32(payload[16:20]))
		width = be.Uint32(payload[72:76])
		height = be.Uint32(payload[76:80])
	}
	return BoxValue{Kind: BoxValueStructured, Structured: TkhdData{
		Version: version, Flags: flags, TrackID: trackID, Duration: duration, Width: width, Height: height,
	}}, nil
}

// decodeStsd records each sample entry sub-box by offset/length rather
// than recursively decoding it; codec-aware consumers (cmd/mp4dump) read
// avc1/mp4a children directly from the source via ReadVisualSampleEntry /
// ReadAudioSampleEntry.
func decodeStsd(payload []byte, hdr BoxHeader, version uint8, flags uint32) (BoxValue, error) {
	if err := need(payload, 4, hdr.Key.Type); err != nil {
		return BoxValue{}, err
	}
	count := be.Uint32(payload[0:4])
	entries := make([]StsdSampleEntry, 0, count)
	pos := 4
	base := hdr.Start + hdr.HeaderSize + 4 // +4 for version/flags already consumed
	for i := uint32(0); i < count; i++ {
		if pos+8 > len(payload) {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "sample entry truncated"}
		}
		size := be.Uint32(payload[pos:])
		var t FourCC
		copy(t[:], payload[pos+4:pos+8])
		if size < 8 || pos+int(size) > len(payload) {
			return BoxValue{}, &DecodeError{BoxType: hdr.Key.Type, Kind: Short, Reason: "sample entry exceeds stsd payload"}
		}
		entries = append(entries, StsdSampleEntry{Type: t, Offset: base + int64(pos), Length: int64(size)})
		pos += int(size)
	}
	return BoxValue{Kind: BoxValueStructured, Structured: StsdData{Version: version, Flags: flags, Entries: entries}}, nil
}
