package bmff

import (
	"io"
	"sort"
)

// SampleInfo is the per-sample record produced by the sample-table
// resolver: decode/presentation time, duration, file placement, and
// sync-sample flag. Index is 0-based.
type SampleInfo struct {
	Index          uint32
	DTS            uint64
	PTS            uint64
	StartTime      float64
	Duration       uint32
	RenderedOffset int64
	FileOffset     uint64
	Size           uint32
	IsSync         bool
}

// TrackSamples is the fully reconstructed per-track sample index.
type TrackSamples struct {
	TrackID     uint32
	HandlerType FourCC
	Timescale   uint32
	Duration    uint64
	SampleCount uint32
	Samples     []SampleInfo
}

// trakTables holds the structured children located under one trak's stbl,
// collected by trackSamplesFromTrak and collectStblTables before the
// resolver's passes run.
type trakTables struct {
	trackID     uint32
	handlerType FourCC
	timescale   uint32
	duration    uint64
	stts        SttsData
	ctts        CttsData
	hasCtts     bool
	stsc        StscData
	sizes       []uint32
	sampleCount uint32
	stss        StssData
	hasStss     bool
	stco        []uint64 // unified 32/64-bit chunk offsets
	fileLen     uint64
}

// TrackSamplesFromReader locates every moov/trak in r and reconstructs its
// sample index, implementing the track_samples() public operation. A trak
// missing stbl, stsc or stsz (or stz2) is skipped, not an error for the
// analysis as a whole. A trak with malformed entries is logged as a warning
// carrying its InvalidSampleTableError and left out of the result; the
// error is not returned to the caller, and the other tracks are still
// returned.
func TrackSamplesFromReader(r io.ReadSeeker) ([]TrackSamples, error) {
	fileLen, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, wrapf(err, "seek to end")
	}

	moov, err := readTopLevelBody(r, TypeMoov)
	if err != nil {
		return nil, err
	}
	if moov == nil {
		return nil, nil
	}

	var out []TrackSamples
	reader := NewReader(moov)
	for reader.Next() {
		if reader.Type() != TypeTrak {
			continue
		}
		trakData := reader.Data()
		ts, err := trackSamplesFromTrak(trakData, uint64(fileLen))
		if err != nil {
			if _, ok := err.(*InvalidSampleTableError); ok {
				log.Warn().Err(err).Msg("skipping track")
				continue
			}
			return nil, err
		}
		if ts != nil {
			out = append(out, *ts)
		}
	}
	return out, nil
}

// readTopLevelBody scans top-level boxes with the Scanner and returns the
// body of the first one matching t, or nil if absent.
func readTopLevelBody(r io.ReadSeeker, t BoxType) ([]byte, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, wrapf(err, "seek to start")
	}
	sc := NewScanner(r)
	for sc.Next() {
		e := sc.Entry()
		if e.Type != t {
			continue
		}
		buf := make([]byte, e.DataSize())
		if err := sc.ReadBody(buf); err != nil {
			return nil, wrapf(err, "read %s body", t)
		}
		return buf, nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// trackSamplesFromTrak implements step 1 (Locate) and dispatches into the
// collect/resolve pipeline. Returns (nil, nil) if stbl is absent, per
// spec's "If stbl is absent, return None" failure semantics, and likewise
// when stbl has no stsc or no stsz/stz2.
func trackSamplesFromTrak(trakData []byte, fileLen uint64) (*TrackSamples, error) {
	tables := trakTables{timescale: 1, fileLen: fileLen}

	r := NewReader(trakData)
	var stblData []byte
	for r.Next() {
		switch r.Type() {
		case TypeTkhd:
			trackID, _, _, _ := r.ReadTkhd()
			tables.trackID = trackID
		case TypeMdia:
			r.Enter()
			for r.Next() {
				switch r.Type() {
				case TypeMdhd:
					timescale, duration, _ := r.ReadMdhd()
					tables.timescale = timescale
					tables.duration = duration
				case TypeHdlr:
					tables.handlerType = r.ReadHdlr()
				case TypeMinf:
					r.Enter()
					for r.Next() {
						if r.Type() == TypeStbl {
							stblData = append([]byte(nil), r.Data()...)
						}
					}
					r.Exit()
				}
			}
			r.Exit()
		}
	}

	if stblData == nil {
		return nil, nil
	}
	if tables.timescale == 0 {
		tables.timescale = 1
	}

	if err := collectStblTables(&tables, stblData); err != nil {
		return nil, err
	}
	if tables.stsc.Entries == nil || tables.sizes == nil {
		// Missing stsc or stsz/stz2: not an error, this track is skipped.
		return nil, nil
	}

	samples, err := resolveSamples(&tables)
	if err != nil {
		return nil, err
	}

	return &TrackSamples{
		TrackID:     tables.trackID,
		HandlerType: tables.handlerType,
		Timescale:   tables.timescale,
		Duration:    tables.duration,
		SampleCount: tables.sampleCount,
		Samples:     samples,
	}, nil
}

// collectStblTables implements step 2 (Collect): decode stts, ctts
// (optional), stsc, stsz/stz2, stss (optional), stco/co64 from stbl's
// direct children.
func collectStblTables(t *trakTables, stblData []byte) error {
	r := NewReader(stblData)
	for r.Next() {
		data := r.Data()
		switch r.Type() {
		case TypeStts:
			v, err := decodeStts(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			t.stts = v.Structured.(SttsData)
		case TypeCtts:
			v, err := decodeCtts(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			t.ctts = v.Structured.(CttsData)
			t.hasCtts = true
		case TypeStsc:
			v, err := decodeStsc(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			t.stsc = v.Structured.(StscData)
		case TypeStsz:
			v, err := decodeStsz(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			sz := v.Structured.(StszData)
			t.sizes = sz.SampleSizes()
			t.sampleCount = sz.SampleCount
		case TypeStz2:
			v, err := decodeStz2(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			sz := v.Structured.(Stz2Data)
			t.sizes = sz.SampleSizes()
			t.sampleCount = sz.SampleCount
		case TypeStss:
			v, err := decodeStss(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			t.stss = v.Structured.(StssData)
			t.hasStss = true
		case TypeStco:
			v, err := decodeStco(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			so := v.Structured.(StcoData)
			t.stco = make([]uint64, len(so.ChunkOffsets))
			for i, o := range so.ChunkOffsets {
				t.stco[i] = uint64(o)
			}
		case TypeCo64:
			v, err := decodeCo64(data, headerFor(&r), r.Version(), r.Flags())
			if err != nil {
				return &InvalidSampleTableError{TrackID: t.trackID, Reason: err.Error()}
			}
			co := v.Structured.(Co64Data)
			t.stco = co.ChunkOffsets
		}
	}
	return nil
}

// headerFor builds a minimal BoxHeader for error messages; the resolver
// only uses fields decoders already have local to the reader.
func headerFor(r *Reader) BoxHeader {
	return BoxHeader{Key: FourCCKey(r.Type()), Start: int64(r.Offset()), HeaderSize: int64(r.HeaderSize())}
}

// resolveSamples implements steps 3-7: sample count, timing pass, sync
// pass, size pass, and the offset pass. Timing and size share one O(N)
// walk; the sync pass and the offset pass each walk the samples again.
func resolveSamples(t *trakTables) ([]SampleInfo, error) {
	n := t.sampleCount
	if n == 0 {
		return nil, nil
	}
	if uint32(len(t.sizes)) < n {
		return nil, &InvalidSampleTableError{TrackID: t.trackID, Reason: "fewer sample sizes than sample_count"}
	}

	samples := make([]SampleInfo, n)

	// Timing pass: expand stts and (optional) ctts in lockstep.
	var dts uint64
	var sttsEntryIdx, sttsRemaining uint32
	var cttsEntryIdx, cttsRemaining uint32
	for i := uint32(0); i < n; i++ {
		for sttsRemaining == 0 {
			if sttsEntryIdx >= uint32(len(t.stts.Entries)) {
				return nil, &InvalidSampleTableError{TrackID: t.trackID, Reason: "stts exhausted before sample_count"}
			}
			sttsRemaining = t.stts.Entries[sttsEntryIdx].Count
			sttsEntryIdx++
		}
		duration := t.stts.Entries[sttsEntryIdx-1].Duration
		samples[i].DTS = dts
		samples[i].Duration = duration
		dts += uint64(duration)
		sttsRemaining--

		var offset int32
		if t.hasCtts {
			for cttsRemaining == 0 {
				if cttsEntryIdx >= uint32(len(t.ctts.Entries)) {
					break
				}
				cttsRemaining = t.ctts.Entries[cttsEntryIdx].Count
				cttsEntryIdx++
			}
			if cttsRemaining > 0 {
				offset = t.ctts.Entries[cttsEntryIdx-1].Offset
				cttsRemaining--
			}
		}
		samples[i].RenderedOffset = int64(offset)
		pts := int64(samples[i].DTS) + int64(offset)
		if pts < 0 {
			pts = 0
		}
		samples[i].PTS = uint64(pts)
		samples[i].StartTime = float64(samples[i].PTS) / float64(t.timescale)
		samples[i].Index = i
		samples[i].Size = t.sizes[i]
	}

	// Sync pass: binary search against strictly increasing 1-based sample
	// numbers, the same lookup shape as a sorted-slice sync table search.
	if t.hasStss {
		nums := t.stss.SampleNumbers
		for i := range samples {
			sampleNr := uint32(i) + 1
			j := sort.Search(len(nums), func(k int) bool { return nums[k] >= sampleNr })
			samples[i].IsSync = j < len(nums) && nums[j] == sampleNr
		}
	} else {
		for i := range samples {
			samples[i].IsSync = true
		}
	}

	// Offset pass: expand stsc against stco/co64, walking chunks in order
	// with a running sample cursor.
	resolved, err := assignFileOffsets(t, samples)
	if err != nil {
		return nil, err
	}

	return samples[:resolved], nil
}

// assignFileOffsets implements step 7: for each chunk, the first sample
// starts at chunk_offsets[c-1]; subsequent samples in the same chunk start
// at the running sum of preceding sample sizes within that chunk. The walk
// is O(N) overall via a cursor into stsc. It returns how many samples the
// chunk schedule placed.
func assignFileOffsets(t *trakTables, samples []SampleInfo) (int, error) {
	if len(t.stco) == 0 {
		return 0, &InvalidSampleTableError{TrackID: t.trackID, Reason: "no chunk offset table"}
	}

	sampleIdx := 0
	stscIdx := 0
	for chunk := 0; chunk < len(t.stco) && sampleIdx < len(samples); chunk++ {
		// Advance to the stsc entry governing this chunk (1-based).
		for stscIdx+1 < len(t.stsc.Entries) && uint32(chunk+1) >= t.stsc.Entries[stscIdx+1].FirstChunk {
			stscIdx++
		}
		if stscIdx >= len(t.stsc.Entries) {
			return 0, &InvalidSampleTableError{TrackID: t.trackID, Reason: "stsc does not cover all chunks"}
		}
		samplesPerChunk := t.stsc.Entries[stscIdx].SamplesPerChunk

		offset := t.stco[chunk]
		for i := uint32(0); i < samplesPerChunk && sampleIdx < len(samples); i++ {
			samples[sampleIdx].FileOffset = offset
			end := offset + uint64(samples[sampleIdx].Size)
			if t.fileLen > 0 && end > t.fileLen {
				log.Warn().
					Uint32("track", t.trackID).
					Int("sample", sampleIdx).
					Uint64("file_offset", offset).
					Uint32("size", samples[sampleIdx].Size).
					Uint64("file_len", t.fileLen).
					Msg("sample extends past end of file")
			}
			offset = end
			sampleIdx++
		}
	}

	if sampleIdx < len(samples) {
		log.Warn().
			Int("resolved", sampleIdx).
			Int("declared", len(samples)).
			Msg("stsc chunk schedule covers fewer samples than sample_count; truncating")
	}

	return sampleIdx, nil
}
