package decoder

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func mp4Box(typ string, parts ...[]byte) []byte {
	var payload []byte
	for _, p := range parts {
		payload = append(payload, p...)
	}
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], typ)
	copy(out[8:], payload)
	return out
}

// fullBox prepends the version/flags word
func fullBox(typ string, parts ...[]byte) []byte {
	all := [][]byte{u32(0)}
	all = append(all, parts...)
	return mp4Box(typ, all...)
}

type containerOpts struct {
	audioOnly bool
	withStss  bool
	withCtts  bool
}

var testSampleSizes = []uint32{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}

var testAVCConfig = []byte{0x01, 0x64, 0x00, 0x1f, 0xff}

// buildContainer assembles a minimal but well-formed MP4: ten samples at
// 30fps (timescale 15360, duration 512 ticks each) split across two chunks
// of five. Returns the bytes and the offset of the first sample.
func buildContainer(opts containerOpts) ([]byte, int64) {
	handler := "vide"
	if opts.audioOnly {
		handler = "soun"
	}

	hdlr := fullBox("hdlr", u32(0), []byte(handler), u32(0), u32(0), u32(0), []byte{0})

	// version 0 mdhd: creation, modification, timescale, duration, language
	mdhd := fullBox("mdhd", u32(0), u32(0), u32(15360), u32(5120), u16(0x55c4), u16(0))

	// version 0 tkhd: width/height are 16.16 fixed point at offset 76
	tkhdBody := make([]byte, 84)
	binary.BigEndian.PutUint32(tkhdBody[76:80], 640<<16)
	binary.BigEndian.PutUint32(tkhdBody[80:84], 360<<16)
	tkhd := mp4Box("tkhd", tkhdBody)

	// avc1 visual sample entry: 8 reserved/dataref bytes, 70 fixed video
	// field bytes, then the avcC configuration box.
	entryBody := make([]byte, 8+70)
	avc1 := mp4Box("avc1", entryBody, mp4Box("avcC", testAVCConfig))
	stsd := fullBox("stsd", u32(1), avc1)

	stts := fullBox("stts", u32(1), u32(10), u32(512))

	var stszSizes []byte
	for _, s := range testSampleSizes {
		stszSizes = append(stszSizes, u32(s)...)
	}
	stsz := fullBox("stsz", u32(0), u32(10), stszSizes)

	stsc := fullBox("stsc", u32(1), u32(1), u32(5), u32(1))

	stblParts := [][]byte{stsd, stts, stsz, stsc}
	if opts.withStss {
		stblParts = append(stblParts, fullBox("stss", u32(2), u32(1), u32(6)))
	}
	if opts.withCtts {
		stblParts = append(stblParts, fullBox("ctts", u32(1), u32(10), u32(1024)))
	}

	mdatPayload := 0
	for _, s := range testSampleSizes {
		mdatPayload += int(s)
	}

	build := func(chunk0, chunk1 uint32) []byte {
		stco := fullBox("stco", u32(2), u32(chunk0), u32(chunk1))
		stbl := mp4Box("stbl", append(append([][]byte{}, stblParts...), stco)...)
		minf := mp4Box("minf", stbl)
		mdia := mp4Box("mdia", mdhd, hdlr, minf)
		trak := mp4Box("trak", tkhd, mdia)
		moov := mp4Box("moov", trak)
		ftyp := mp4Box("ftyp", []byte("isom"), u32(0x200), []byte("isomavc1"))
		mdat := mp4Box("mdat", make([]byte, mdatPayload))
		return bytes.Join([][]byte{ftyp, moov, mdat}, nil)
	}

	// Two passes: the first measures where mdat lands, the second writes
	// the real chunk offsets.
	probe := build(0, 0)
	mdatOffset := int64(len(probe) - mdatPayload)

	chunk0 := uint32(mdatOffset)
	chunk1 := chunk0
	for _, s := range testSampleSizes[:5] {
		chunk1 += s
	}

	return build(chunk0, chunk1), mdatOffset
}

func TestParseAtoms_WalksContainerTree(t *testing.T) {
	data, _ := buildContainer(containerOpts{withStss: true})

	atoms, err := ParseAtoms(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, atoms, 3)

	assert.Equal(t, "ftyp", atoms[0].Type)
	assert.Equal(t, "moov", atoms[1].Type)
	assert.Equal(t, "mdat", atoms[2].Type)

	require.Len(t, atoms[1].Children, 1)
	trak := atoms[1].Children[0]
	assert.Equal(t, "trak", trak.Type)
	require.NotNil(t, findChild(trak, "mdia"))

	stbl := findChild(*findChild(*findChild(trak, "mdia"), "minf"), "stbl")
	require.NotNil(t, stbl)
	assert.NotNil(t, findChild(*stbl, "stts"))
	assert.NotNil(t, findChild(*stbl, "stco"))
}

func TestParseAtoms_RejectsMalformedSize(t *testing.T) {
	bad := mp4Box("moov")
	binary.BigEndian.PutUint32(bad[0:4], 4) // smaller than its own header

	_, err := ParseAtoms(bytes.NewReader(bad))
	assert.Error(t, err)
}

func TestParseVideoTrack_FlattensSampleTables(t *testing.T) {
	data, mdatOffset := buildContainer(containerOpts{withStss: true})

	track, err := ParseVideoTrack(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, uint32(15360), track.Timescale)
	assert.Equal(t, uint64(5120), track.Duration)
	assert.Equal(t, uint32(640), track.Width)
	assert.Equal(t, uint32(360), track.Height)
	assert.Equal(t, "h264", track.Codec)
	assert.Equal(t, testAVCConfig, track.CodecConfig)
	assert.InDelta(t, 30.0, track.FrameRate(), 1e-9)

	require.Len(t, track.Samples, 10)
	offset := mdatOffset
	for i, s := range track.Samples {
		assert.Equal(t, int64(i)*512, s.DTS, "sample %d DTS", i)
		assert.Equal(t, s.DTS, s.PTS, "sample %d PTS", i)
		assert.Equal(t, int64(512), s.Duration, "sample %d duration", i)
		assert.Equal(t, int64(testSampleSizes[i]), s.Size, "sample %d size", i)
		assert.Equal(t, offset, s.Offset, "sample %d offset", i)
		offset += s.Size
	}

	// stss named samples 1 and 6 (one-based).
	for i, s := range track.Samples {
		assert.Equal(t, i == 0 || i == 5, s.Key, "sample %d keyframe flag", i)
	}
}

func TestParseVideoTrack_CttsShiftsPresentationTimes(t *testing.T) {
	data, _ := buildContainer(containerOpts{withStss: true, withCtts: true})

	track, err := ParseVideoTrack(bytes.NewReader(data))
	require.NoError(t, err)

	require.Len(t, track.Samples, 10)
	for i, s := range track.Samples {
		assert.Equal(t, s.DTS+1024, s.PTS, "sample %d", i)
	}
}

func TestParseVideoTrack_NoStssMeansEverySampleIsSync(t *testing.T) {
	data, _ := buildContainer(containerOpts{})

	track, err := ParseVideoTrack(bytes.NewReader(data))
	require.NoError(t, err)

	for i, s := range track.Samples {
		assert.True(t, s.Key, "sample %d", i)
	}
}

func TestParseVideoTrack_AudioOnlyContainer(t *testing.T) {
	data, _ := buildContainer(containerOpts{audioOnly: true})

	_, err := ParseVideoTrack(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrNoVideoTrack)
}

func TestParseVideoTrack_GarbageInput(t *testing.T) {
	_, err := ParseVideoTrack(bytes.NewReader([]byte("definitely not an mp4 file")))
	assert.Error(t, err)
}

func TestLengthPrefixedToAnnexB(t *testing.T) {
	sample := bytes.Join([][]byte{
		u32(3), {0xaa, 0xbb, 0xcc},
		u32(2), {0xdd, 0xee},
	}, nil)

	out := lengthPrefixedToAnnexB(sample, 4)

	want := []byte{0, 0, 0, 1, 0xaa, 0xbb, 0xcc, 0, 0, 0, 1, 0xdd, 0xee}
	assert.Equal(t, want, out)
}

func TestParseAVCConfig(t *testing.T) {
	// avcC with one SPS (3 bytes) and one PPS (2 bytes), 4-byte NALs.
	cfg := bytes.Join([][]byte{
		{0x01, 0x64, 0x00, 0x1f, 0xff}, // version, profile, compat, level, lengthSizeMinusOne
		{0xe1}, u16(3), {0x67, 0x01, 0x02},
		{0x01}, u16(2), {0x68, 0x03},
	}, nil)

	nalLength, prefix := parseAVCConfig(cfg)

	assert.Equal(t, 4, nalLength)
	want := []byte{0, 0, 0, 1, 0x67, 0x01, 0x02, 0, 0, 0, 1, 0x68, 0x03}
	assert.Equal(t, want, prefix)
}
