package mkvsubs

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"time"

	"go.uber.org/atomic"
)

// --- EBML encoding helpers -------------------------------------------------

// encID emits an element ID as stored on the wire: the marker bit is already
// part of the constant, so this is just the minimal big-endian encoding.
func encID(id uint64) []byte {
	var out []byte
	for shift := 24; shift >= 0; shift -= 8 {
		b := byte(id >> shift)
		if b == 0 && out == nil && shift > 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// encSize encodes a data size as a minimal-width VINT.
func encSize(v int64) []byte {
	for width := 1; width <= 8; width++ {
		if uint64(v) < uint64(1)<<(7*width)-1 {
			return encSizeWidth(v, width)
		}
	}
	panic("size too large")
}

// encSizeWidth encodes a data size in exactly width bytes.
func encSizeWidth(v int64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	out[0] |= 0x80 >> (width - 1)
	return out
}

// el frames payload pieces as an element with the given ID.
func el(id uint64, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	out := encID(id)
	out = append(out, encSize(int64(len(body)))...)
	return append(out, body...)
}

// beUint emits v as a minimal big-endian unsigned integer, at least 1 byte.
func beUint(v uint64) []byte {
	out := []byte{byte(v)}
	for v >>= 8; v != 0; v >>= 8 {
		out = append([]byte{byte(v)}, out...)
	}
	return out
}

// beUintN emits v as exactly n big-endian bytes.
func beUintN(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func uintEl(id, v uint64) []byte { return el(id, beUint(v)) }

func uintElN(id, v uint64, n int) []byte { return el(id, beUintN(v, n)) }

func strEl(id uint64, s string) []byte { return el(id, []byte(s)) }

// blockBody builds a SimpleBlock/Block body: track VINT, signed 16-bit
// relative timestamp, flags, payload.
func blockBody(track uint64, relTs int16, flags byte, payload []byte) []byte {
	if track > 126 {
		panic("test blocks use 1-byte track numbers")
	}
	body := []byte{byte(0x80 | track)}
	body = append(body, byte(uint16(relTs)>>8), byte(uint16(relTs)))
	body = append(body, flags)
	return append(body, payload...)
}

// --- synthetic MKV files ---------------------------------------------------

type testTrack struct {
	num     uint64
	typ     uint64 // defaults to subtitle
	codec   string
	lang    string
	bcp47   string
	name    string
	private []byte
}

type testBlock struct {
	track     uint64
	relTs     int16
	payload   []byte
	duration  int64 // <0: no BlockDuration (a SimpleBlock unless additions are set); >=0: a BlockGroup with BlockDuration
	additions []byte
}

type testCluster struct {
	ts     uint64
	blocks []testBlock
}

type testAttachment struct {
	name string
	mime string
	data []byte
}

type mkvSpec struct {
	scale       uint64 // 0 means omit TimestampScale
	tracks      []testTrack
	clusters    []testCluster
	attachments []testAttachment
	withCues    bool
	cuesAtEnd   bool // place Cues after the clusters and index them via SeekHead
	padding     int  // trailing garbage after the last element
}

func encTrackEntry(tr testTrack) []byte {
	typ := tr.typ
	if typ == 0 {
		typ = trackTypeSubtitle
	}
	parts := [][]byte{
		uintEl(IDTrackNum, tr.num),
		uintEl(IDTrackType, typ),
		strEl(IDCodecID, tr.codec),
	}
	if tr.lang != "" {
		parts = append(parts, strEl(IDLanguage, tr.lang))
	}
	if tr.bcp47 != "" {
		parts = append(parts, strEl(IDLanguageBCP47, tr.bcp47))
	}
	if tr.name != "" {
		parts = append(parts, strEl(IDTrackName, tr.name))
	}
	if tr.private != nil {
		parts = append(parts, el(IDCodecPriv, tr.private))
	}
	return el(IDTrackEntry, bytes.Join(parts, nil))
}

func encBlock(b testBlock) []byte {
	body := blockBody(b.track, b.relTs, 0, b.payload)
	if b.duration < 0 && b.additions == nil {
		return el(IDSimpleBlock, body)
	}
	parts := [][]byte{el(IDBlock, body)}
	if b.duration >= 0 {
		parts = append(parts, uintEl(IDBlockDuration, uint64(b.duration)))
	}
	if b.additions != nil {
		parts = append(parts, el(IDBlockAdditions, el(IDBlockMore, el(IDBlockAdditional, b.additions))))
	}
	return el(IDBlockGroup, bytes.Join(parts, nil))
}

func encCluster(c testCluster) []byte {
	parts := [][]byte{uintEl(IDTimestamp, c.ts)}
	for _, b := range c.blocks {
		parts = append(parts, encBlock(b))
	}
	return el(IDCluster, bytes.Join(parts, nil))
}

// blockOffsets returns, for one encoded cluster, the offset of every block
// element relative to the cluster data start.
func blockOffsets(clusterBytes []byte) []int64 {
	cl, _ := parseElementAt(clusterBytes, 0)
	var rel []int64
	w := newChildWalker(clusterBytes, cl.dataOffset, int64(len(clusterBytes)))
	for child, _, ok := w.next(); ok; child, _, ok = w.next() {
		if child.id == IDSimpleBlock || child.id == IDBlockGroup {
			rel = append(rel, child.headerOffset-cl.dataOffset)
		}
	}
	return rel
}

// buildMKV assembles a complete Matroska file. Cue and SeekHead positions are
// encoded in fixed 8-byte integers so every element's size is known before
// the positions themselves are, letting the file be laid out in two passes.
func buildMKV(spec mkvSpec) []byte {
	ebmlHeader := el(IDEBMLHeader, strEl(IDDocType, "matroska"))

	var infoParts [][]byte
	if spec.scale != 0 {
		infoParts = append(infoParts, uintEl(IDTimestampScale, spec.scale))
	}
	info := el(IDSegmentInfo, bytes.Join(infoParts, nil))

	var trackParts [][]byte
	for _, tr := range spec.tracks {
		trackParts = append(trackParts, encTrackEntry(tr))
	}
	tracksEl := el(IDTracks, bytes.Join(trackParts, nil))

	var attachEl []byte
	if len(spec.attachments) > 0 {
		var files [][]byte
		for _, a := range spec.attachments {
			files = append(files, el(IDAttachedFile,
				strEl(IDFileName, a.name),
				strEl(IDFileMimeType, a.mime),
				el(IDFileData, a.data)))
		}
		attachEl = el(IDAttachments, bytes.Join(files, nil))
	}

	clusterBytes := make([][]byte, len(spec.clusters))
	clustersLen := int64(0)
	for i, c := range spec.clusters {
		clusterBytes[i] = encCluster(c)
		clustersLen += int64(len(clusterBytes[i]))
	}

	seek := func(id uint64, pos int64) []byte {
		return el(IDSeek, el(IDSeekID, encID(id)), uintElN(IDSeekPos, uint64(pos), 8))
	}

	buildCues := func(clusterPos []int64, relativePos [][]int64) []byte {
		if !spec.withCues {
			return nil
		}
		var points [][]byte
		for i, c := range spec.clusters {
			for j, b := range c.blocks {
				points = append(points, el(IDCuePoint,
					uintElN(IDCueTime, c.ts+uint64(int64(b.relTs)), 8),
					el(IDCueTrackPositions,
						uintElN(IDCueTrack, b.track, 8),
						uintElN(IDCueClusterPosition, uint64(clusterPos[i]), 8),
						uintElN(IDCueRelativePosition, uint64(relativePos[i][j]), 8))))
			}
		}
		return el(IDCues, bytes.Join(points, nil))
	}

	assemble := func(clusterPos []int64, relativePos [][]int64) (body []byte, outPos []int64, outRel [][]int64) {
		cuesEl := buildCues(clusterPos, relativePos)

		var seekHead []byte
		if spec.cuesAtEnd {
			seekHeadLen := int64(len(el(IDSeekHead, seek(IDTracks, 0), seek(IDCues, 0))))
			tracksStart := seekHeadLen + int64(len(info))
			cuesStart := tracksStart + int64(len(tracksEl)) + int64(len(attachEl)) + clustersLen
			seekHead = el(IDSeekHead, seek(IDTracks, tracksStart), seek(IDCues, cuesStart))
		}

		body = append(body, seekHead...)
		body = append(body, info...)
		body = append(body, tracksEl...)
		body = append(body, attachEl...)
		if !spec.cuesAtEnd {
			body = append(body, cuesEl...)
		}

		outPos = make([]int64, len(clusterBytes))
		outRel = make([][]int64, len(clusterBytes))
		for i, cb := range clusterBytes {
			outPos[i] = int64(len(body))
			outRel[i] = blockOffsets(cb)
			body = append(body, cb...)
		}

		if spec.cuesAtEnd {
			body = append(body, cuesEl...)
		}
		body = append(body, make([]byte, spec.padding)...)
		return body, outPos, outRel
	}

	dummyPos := make([]int64, len(spec.clusters))
	dummyRel := make([][]int64, len(spec.clusters))
	for i := range spec.clusters {
		dummyRel[i] = make([]int64, len(spec.clusters[i].blocks))
	}
	_, clusterPos, relativePos := assemble(dummyPos, dummyRel)
	body, _, _ := assemble(clusterPos, relativePos)

	out := append([]byte{}, ebmlHeader...)
	return append(out, el(IDSegment, body)...)
}

// --- HTTP fixtures ---------------------------------------------------------

// rangeServer serves content with full Range support and counts requests.
func rangeServer(content []byte) (*httptest.Server, *atomic.Int64) {
	requests := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Inc()
		http.ServeContent(w, r, "test.mkv", time.Unix(0, 0), bytes.NewReader(content))
	}))
	return srv, requests
}

// noRangeServer ignores Range headers and always answers 200 with the whole
// body.
func noRangeServer(content []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
	}))
}
