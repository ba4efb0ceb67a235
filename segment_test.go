package mkvsubs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func layoutFor(t *testing.T, content []byte) (*segmentLayout, *RangeReader) {
	t.Helper()
	srv, _ := rangeServer(content)
	t.Cleanup(srv.Close)

	r, err := NewRangeReader(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	layout, err := parseSegmentLayout(context.Background(), r, zap.NewNop())
	require.NoError(t, err)
	return layout, r
}

func TestParseSegmentLayout_Defaults(t *testing.T) {
	content := buildMKV(mkvSpec{
		tracks:   []testTrack{{num: 1, codec: "S_TEXT/UTF8"}},
		clusters: []testCluster{{ts: 0, blocks: []testBlock{{track: 1, payload: []byte("x"), duration: -1}}}},
	})

	layout, _ := layoutFor(t, content)
	assert.Equal(t, uint64(defaultTimestampScale), layout.timestampScale)
	assert.Positive(t, layout.firstCluster)
	assert.GreaterOrEqual(t, layout.elementPos(IDTracks), int64(0))
	assert.Equal(t, int64(-1), layout.elementPos(IDCues))
}

func TestParseSegmentLayout_ExplicitScale(t *testing.T) {
	content := buildMKV(mkvSpec{
		scale:    500_000,
		tracks:   []testTrack{{num: 1, codec: "S_TEXT/UTF8"}},
		clusters: []testCluster{{ts: 0, blocks: []testBlock{{track: 1, payload: []byte("x"), duration: -1}}}},
	})

	layout, _ := layoutFor(t, content)
	assert.Equal(t, uint64(500_000), layout.timestampScale)
}

func TestParseSegmentLayout_SeekHeadResolvesTrailingCues(t *testing.T) {
	content := buildMKV(mkvSpec{
		tracks:    []testTrack{{num: 1, codec: "S_TEXT/UTF8"}},
		clusters:  []testCluster{{ts: 10, blocks: []testBlock{{track: 1, payload: []byte("x"), duration: -1}}}},
		withCues:  true,
		cuesAtEnd: true,
	})

	layout, r := layoutFor(t, content)

	// The Cues element sits after the clusters, beyond the metadata scan;
	// only the SeekHead knows where it is.
	cuesPos := layout.elementPos(IDCues)
	require.GreaterOrEqual(t, cuesPos, int64(0))

	cues, err := parseCues(context.Background(), r, cuesPos)
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, uint64(1), cues[0].track)
	assert.Equal(t, uint64(10), cues[0].time)
	assert.GreaterOrEqual(t, cues[0].relativePos, int64(0))
}

func TestParseSegmentLayout_NotMatroska(t *testing.T) {
	srv, _ := rangeServer([]byte("this is not an mkv file at all, not even a little"))
	defer srv.Close()

	r, err := NewRangeReader(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	_, err = parseSegmentLayout(context.Background(), r, zap.NewNop())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseSegmentLayout_MissingSegment(t *testing.T) {
	content := el(IDEBMLHeader, strEl(IDDocType, "matroska")) // EBML header, then nothing
	srv, _ := rangeServer(content)
	defer srv.Close()

	r, err := NewRangeReader(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	_, err = parseSegmentLayout(context.Background(), r, zap.NewNop())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
