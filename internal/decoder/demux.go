package decoder

import (
	"encoding/binary"
	"fmt"
	"io"
)

// VideoSample is one encoded frame as described by the sample table
type VideoSample struct {
	PTS      int64 // presentation time in track ticks
	DTS      int64 // decode time in track ticks
	Duration int64
	Offset   int64 // byte offset in the source stream
	Size     int64
	Key      bool // sync sample, decodable without prior samples
}

// VideoTrack is the parsed video track of an MP4 container
type VideoTrack struct {
	Timescale   uint32
	Duration    uint64 // in track ticks
	Width       uint32
	Height      uint32
	Codec       string // h264, hevc, or the raw sample entry tag
	CodecConfig []byte // codec-specific configuration (e.g. avcC payload)
	Samples     []VideoSample
}

// DurationSeconds returns the track duration in seconds
func (t *VideoTrack) DurationSeconds() float64 {
	if t.Timescale == 0 {
		return 0
	}
	return float64(t.Duration) / float64(t.Timescale)
}

// FrameRate derives the native frame rate as sampleCount/durationSeconds
func (t *VideoTrack) FrameRate() float64 {
	secs := t.DurationSeconds()
	if secs == 0 {
		return 0
	}
	return float64(len(t.Samples)) / secs
}

// FrameDurationTicks returns the average per-frame duration in track ticks
func (t *VideoTrack) FrameDurationTicks() int64 {
	if len(t.Samples) == 0 {
		return 0
	}
	return int64(t.Duration) / int64(len(t.Samples))
}

// ParseVideoTrack probes the container and extracts the first video track
// with a fully flattened, presentation-time-sorted sample table. It returns
// ErrNoVideoTrack when the container carries no video track.
func ParseVideoTrack(r io.ReadSeeker) (*VideoTrack, error) {
	atoms, err := ParseAtoms(r)
	if err != nil {
		return nil, fmt.Errorf("failed to probe container: %w", err)
	}

	var moov *Atom
	for i := range atoms {
		if atoms[i].Type == "moov" {
			moov = &atoms[i]
			break
		}
	}
	if moov == nil {
		return nil, ErrNoVideoTrack
	}

	for _, child := range moov.Children {
		if child.Type != "trak" {
			continue
		}
		track, err := parseTrack(r, child)
		if err != nil {
			// A malformed non-video track must not sink the probe.
			continue
		}
		if track != nil {
			return track, nil
		}
	}

	return nil, ErrNoVideoTrack
}

// parseTrack parses one trak atom; it returns (nil, nil) for non-video tracks
func parseTrack(r io.ReadSeeker, trak Atom) (*VideoTrack, error) {
	mdia := findChild(trak, "mdia")
	if mdia == nil {
		return nil, fmt.Errorf("missing mdia")
	}

	hdlr := findChild(*mdia, "hdlr")
	if hdlr == nil {
		return nil, fmt.Errorf("missing hdlr")
	}
	hdlrPayload, err := readPayload(r, *hdlr)
	if err != nil {
		return nil, err
	}
	if len(hdlrPayload) < 12 || string(hdlrPayload[8:12]) != "vide" {
		return nil, nil
	}

	track := &VideoTrack{}

	mdhd := findChild(*mdia, "mdhd")
	if mdhd == nil {
		return nil, fmt.Errorf("missing mdhd")
	}
	mdhdPayload, err := readPayload(r, *mdhd)
	if err != nil {
		return nil, err
	}
	track.Timescale, track.Duration, err = parseMdhd(mdhdPayload)
	if err != nil {
		return nil, err
	}

	if tkhd := findChild(trak, "tkhd"); tkhd != nil {
		if payload, err := readPayload(r, *tkhd); err == nil {
			track.Width, track.Height = parseTkhd(payload)
		}
	}

	minf := findChild(*mdia, "minf")
	if minf == nil {
		return nil, fmt.Errorf("missing minf")
	}
	stbl := findChild(*minf, "stbl")
	if stbl == nil {
		return nil, fmt.Errorf("missing stbl")
	}

	if stsd := findChild(*stbl, "stsd"); stsd != nil {
		if payload, err := readPayload(r, *stsd); err == nil {
			track.Codec, track.CodecConfig = parseStsd(payload)
		}
	}

	samples, err := flattenSamples(r, *stbl)
	if err != nil {
		return nil, fmt.Errorf("failed to map samples: %w", err)
	}
	track.Samples = samples

	sortSamplesByPTS(track.Samples)
	return track, nil
}

// flattenSamples turns the stts/stss/stsz/stsc/stco(/ctts) tables into one
// flat per-sample list with byte offsets, timestamps and keyframe flags.
func flattenSamples(r io.ReadSeeker, stbl Atom) ([]VideoSample, error) {
	sttsAtom := findChild(stbl, "stts")
	stszAtom := findChild(stbl, "stsz")
	stscAtom := findChild(stbl, "stsc")
	stcoAtom := findChild(stbl, "stco")
	if stcoAtom == nil {
		stcoAtom = findChild(stbl, "co64")
	}
	if sttsAtom == nil || stszAtom == nil || stscAtom == nil || stcoAtom == nil {
		return nil, fmt.Errorf("missing critical sample tables")
	}

	stts, err := payloadOf(r, *sttsAtom, parseStts)
	if err != nil {
		return nil, err
	}
	fixedSize, sizes, err := payloadOf2(r, *stszAtom, parseStsz)
	if err != nil {
		return nil, err
	}
	stsc, err := payloadOf(r, *stscAtom, parseStsc)
	if err != nil {
		return nil, err
	}
	chunkOffsets, err := payloadOf(r, *stcoAtom, func(p []byte) ([]int64, error) {
		return parseChunkOffsets(p, stcoAtom.Type == "co64")
	})
	if err != nil {
		return nil, err
	}

	var syncSamples []uint32
	if stss := findChild(stbl, "stss"); stss != nil {
		syncSamples, err = payloadOf(r, *stss, parseStss)
		if err != nil {
			return nil, err
		}
	}

	var ctsOffsets []int32
	if ctts := findChild(stbl, "ctts"); ctts != nil {
		ctsOffsets, err = payloadOf(r, *ctts, parseCtts)
		if err != nil {
			return nil, err
		}
	}

	numSamples := 0
	for _, entry := range stts {
		numSamples += int(entry.count)
	}
	samples := make([]VideoSample, numSamples)

	// Decode times from stts.
	idx := 0
	dts := int64(0)
	for _, entry := range stts {
		for i := 0; i < int(entry.count) && idx < numSamples; i++ {
			samples[idx].DTS = dts
			samples[idx].Duration = int64(entry.duration)
			dts += int64(entry.duration)
			idx++
		}
	}

	// Presentation times: DTS plus the ctts offset when present.
	for i := range samples {
		samples[i].PTS = samples[i].DTS
		if i < len(ctsOffsets) {
			samples[i].PTS += int64(ctsOffsets[i])
		}
	}

	// Sizes.
	for i := range samples {
		if fixedSize != 0 {
			samples[i].Size = int64(fixedSize)
		} else if i < len(sizes) {
			samples[i].Size = int64(sizes[i])
		}
	}

	// Keyframe flags: with no stss box every sample is a sync sample.
	if len(syncSamples) == 0 {
		for i := range samples {
			samples[i].Key = true
		}
	} else {
		for _, id := range syncSamples {
			if int(id) >= 1 && int(id) <= numSamples {
				samples[id-1].Key = true
			}
		}
	}

	// Byte offsets: walk chunks, applying the stsc run covering each chunk.
	sampleIdx := 0
	for chunk, chunkOffset := range chunkOffsets {
		chunkIndex := uint32(chunk + 1)
		var perChunk uint32
		for _, run := range stsc {
			if chunkIndex >= run.firstChunk {
				perChunk = run.samplesPerChunk
			} else {
				break
			}
		}

		offset := chunkOffset
		for i := 0; i < int(perChunk) && sampleIdx < numSamples; i++ {
			samples[sampleIdx].Offset = offset
			offset += samples[sampleIdx].Size
			sampleIdx++
		}
	}

	return samples, nil
}

func sortSamplesByPTS(samples []VideoSample) {
	// Insertion sort: sample tables are near-sorted already (B-frame
	// reordering only displaces within a GOP).
	for i := 1; i < len(samples); i++ {
		for j := i; j > 0 && samples[j].PTS < samples[j-1].PTS; j-- {
			samples[j], samples[j-1] = samples[j-1], samples[j]
		}
	}
}

// payloadOf loads a box payload and applies a table parser to it
func payloadOf[T any](r io.ReadSeeker, atom Atom, parse func([]byte) ([]T, error)) ([]T, error) {
	payload, err := readPayload(r, atom)
	if err != nil {
		return nil, err
	}
	return parse(payload)
}

func payloadOf2(r io.ReadSeeker, atom Atom, parse func([]byte) (uint32, []uint32, error)) (uint32, []uint32, error) {
	payload, err := readPayload(r, atom)
	if err != nil {
		return 0, nil, err
	}
	return parse(payload)
}

type sttsEntry struct{ count, duration uint32 }

func parseStts(p []byte) ([]sttsEntry, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("short stts")
	}
	n := binary.BigEndian.Uint32(p[4:8])
	if len(p) < 8+int(n)*8 {
		return nil, fmt.Errorf("truncated stts")
	}
	entries := make([]sttsEntry, n)
	for i := range entries {
		base := 8 + i*8
		entries[i].count = binary.BigEndian.Uint32(p[base : base+4])
		entries[i].duration = binary.BigEndian.Uint32(p[base+4 : base+8])
	}
	return entries, nil
}

func parseStss(p []byte) ([]uint32, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("short stss")
	}
	n := binary.BigEndian.Uint32(p[4:8])
	if len(p) < 8+int(n)*4 {
		return nil, fmt.Errorf("truncated stss")
	}
	entries := make([]uint32, n)
	for i := range entries {
		entries[i] = binary.BigEndian.Uint32(p[8+i*4 : 12+i*4])
	}
	return entries, nil
}

func parseStsz(p []byte) (uint32, []uint32, error) {
	if len(p) < 12 {
		return 0, nil, fmt.Errorf("short stsz")
	}
	fixedSize := binary.BigEndian.Uint32(p[4:8])
	n := binary.BigEndian.Uint32(p[8:12])
	if fixedSize != 0 {
		return fixedSize, nil, nil
	}
	if len(p) < 12+int(n)*4 {
		return 0, nil, fmt.Errorf("truncated stsz")
	}
	sizes := make([]uint32, n)
	for i := range sizes {
		sizes[i] = binary.BigEndian.Uint32(p[12+i*4 : 16+i*4])
	}
	return 0, sizes, nil
}

type stscEntry struct{ firstChunk, samplesPerChunk, sampleDescID uint32 }

func parseStsc(p []byte) ([]stscEntry, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("short stsc")
	}
	n := binary.BigEndian.Uint32(p[4:8])
	if len(p) < 8+int(n)*12 {
		return nil, fmt.Errorf("truncated stsc")
	}
	entries := make([]stscEntry, n)
	for i := range entries {
		base := 8 + i*12
		entries[i].firstChunk = binary.BigEndian.Uint32(p[base : base+4])
		entries[i].samplesPerChunk = binary.BigEndian.Uint32(p[base+4 : base+8])
		entries[i].sampleDescID = binary.BigEndian.Uint32(p[base+8 : base+12])
	}
	return entries, nil
}

func parseChunkOffsets(p []byte, wide bool) ([]int64, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("short chunk offset table")
	}
	n := int(binary.BigEndian.Uint32(p[4:8]))
	width := 4
	if wide {
		width = 8
	}
	if len(p) < 8+n*width {
		return nil, fmt.Errorf("truncated chunk offset table")
	}
	offsets := make([]int64, n)
	for i := range offsets {
		base := 8 + i*width
		if wide {
			offsets[i] = int64(binary.BigEndian.Uint64(p[base : base+8]))
		} else {
			offsets[i] = int64(binary.BigEndian.Uint32(p[base : base+4]))
		}
	}
	return offsets, nil
}

// parseCtts expands the composition-offset runs into per-sample offsets
func parseCtts(p []byte) ([]int32, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("short ctts")
	}
	n := binary.BigEndian.Uint32(p[4:8])
	if len(p) < 8+int(n)*8 {
		return nil, fmt.Errorf("truncated ctts")
	}
	var offsets []int32
	for i := 0; i < int(n); i++ {
		base := 8 + i*8
		count := binary.BigEndian.Uint32(p[base : base+4])
		// Version 0 offsets are unsigned, version 1 signed; the bit
		// pattern is reinterpreted either way.
		offset := int32(binary.BigEndian.Uint32(p[base+4 : base+8]))
		for j := uint32(0); j < count; j++ {
			offsets = append(offsets, offset)
		}
	}
	return offsets, nil
}

func parseMdhd(p []byte) (uint32, uint64, error) {
	if len(p) < 4 {
		return 0, 0, fmt.Errorf("short mdhd")
	}
	version := p[0]
	if version == 1 {
		if len(p) < 32 {
			return 0, 0, fmt.Errorf("truncated mdhd v1")
		}
		timescale := binary.BigEndian.Uint32(p[20:24])
		duration := binary.BigEndian.Uint64(p[24:32])
		return timescale, duration, nil
	}
	if len(p) < 20 {
		return 0, 0, fmt.Errorf("truncated mdhd v0")
	}
	timescale := binary.BigEndian.Uint32(p[12:16])
	duration := uint64(binary.BigEndian.Uint32(p[16:20]))
	return timescale, duration, nil
}

// parseTkhd extracts the presentation width/height (16.16 fixed point)
func parseTkhd(p []byte) (uint32, uint32) {
	version := p[0]
	// After the fullbox header: times/ids, then reserved, layer, volume,
	// matrix, then width and height.
	base := 4 + 20 + 8 + 8 + 36
	if version == 1 {
		base = 4 + 32 + 8 + 8 + 36
	}
	if len(p) < base+8 {
		return 0, 0
	}
	width := binary.BigEndian.Uint32(p[base:base+4]) >> 16
	height := binary.BigEndian.Uint32(p[base+4:base+8]) >> 16
	return width, height
}

// parseStsd extracts the codec identifier and the codec-specific
// configuration bytes from the first sample description entry.
func parseStsd(p []byte) (string, []byte) {
	if len(p) < 16 {
		return "", nil
	}
	tag := string(p[12:16])

	codec := tag
	switch tag {
	case "avc1", "avc3":
		codec = "h264"
	case "hev1", "hvc1":
		codec = "hevc"
	}

	// Visual sample entry: 8-byte box header, 8 bytes reserved/dataref,
	// 70 bytes of fixed video fields, then the configuration boxes.
	entry := p[8:]
	const configStart = 8 + 8 + 70
	if len(entry) < configStart+8 {
		return codec, nil
	}

	pos := configStart
	for pos+8 <= len(entry) {
		size := int(binary.BigEndian.Uint32(entry[pos : pos+4]))
		typ := string(entry[pos+4 : pos+8])
		if size < 8 || pos+size > len(entry) {
			break
		}
		switch typ {
		case "avcC", "hvcC", "esds", "vpcC", "av1C":
			return codec, entry[pos+8 : pos+size]
		}
		pos += size
	}

	return codec, nil
}
