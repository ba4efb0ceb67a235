package mkvsubs

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// subtitleBlock is one extracted subtitle event, timed in milliseconds.
type subtitleBlock struct {
	track       uint64
	timestampMs int64
	durationMs  int64 // -1 when the block carries no duration
	payload     []byte
	additions   []byte // raw BlockAdditional bytes, nil when absent
}

// ticksToMs converts raw timestamp units to milliseconds using the segment's
// timestamp scale (nanoseconds per unit).
func ticksToMs(ticks int64, scale uint64) int64 {
	return ticks * int64(scale) / 1_000_000
}

// blockTrackNumber reads the track-number VINT at the start of a block
// payload. Used on short peeks to decide whether a block is worth fetching.
func blockTrackNumber(data []byte) (uint64, int, bool) {
	track, width, err := readVintValue(data, 0)
	if err != nil || track == sizeUnknown {
		return 0, 0, false
	}
	return uint64(track), width, true
}

// parseBlockPayload splits a SimpleBlock or Block body into its track number,
// signed 16-bit relative timestamp and payload. The payload is copied out of
// the surrounding buffer.
//
// Lacing flags are not inspected: subtitle tracks do not use lacing in
// practice, so the whole remainder after the flags byte is treated as one
// payload.
func parseBlockPayload(data []byte) (track uint64, relTs int16, payload []byte, err error) {
	track, width, ok := blockTrackNumber(data)
	if !ok {
		return 0, 0, nil, errors.New("block: invalid track number")
	}
	if len(data) < width+3 {
		return 0, 0, nil, errors.New("block: too short for timestamp and flags")
	}

	relTs = int16(binary.BigEndian.Uint16(data[width : width+2]))
	payload = copyBytes(data[width+3:])
	return track, relTs, payload, nil
}

// parseBlockGroupData walks a BlockGroup's children, returning the inner
// Block body, the raw BlockDuration (-1 when absent) and any BlockAdditional
// bytes.
func parseBlockGroupData(data []byte) (blockData []byte, durationRaw int64, additions []byte) {
	durationRaw = -1
	w := newChildWalker(data, 0, int64(len(data)))
	for el, childData, ok := w.next(); ok; el, childData, ok = w.next() {
		switch el.id {
		case IDBlock:
			blockData = childData
		case IDBlockDuration:
			durationRaw = int64(readUint(childData))
		case IDBlockAdditions:
			aw := newChildWalker(childData, 0, int64(len(childData)))
			for more, moreData, okMore := aw.next(); okMore; more, moreData, okMore = aw.next() {
				if more.id != IDBlockMore {
					continue
				}
				mw := newChildWalker(moreData, 0, int64(len(moreData)))
				for add, addData, okAdd := mw.next(); okAdd; add, addData, okAdd = mw.next() {
					if add.id == IDBlockAdditional {
						additions = copyBytes(addData)
					}
				}
			}
		}
	}
	return blockData, durationRaw, additions
}

// clusterWalker walks clusters linearly, extracting subtitle blocks while
// skipping the payload bytes of every other track.
type clusterWalker struct {
	r      *RangeReader
	scale  uint64
	tracks map[uint64]bool
	log    *zap.Logger
}

// scanFrom walks every cluster between the absolute offsets start and end.
// This is the fallback path when the file has no usable Cue index.
func (cw *clusterWalker) scanFrom(ctx context.Context, start, end int64) ([]subtitleBlock, error) {
	var blocks []subtitleBlock

	off := start
	for off < end {
		el, err := peekElement(ctx, cw.r, off)
		if err != nil {
			break
		}

		if el.id != IDCluster {
			if el.unknownSize {
				break
			}
			off = el.dataOffset + el.size
			continue
		}

		clusterBlocks, next, err := cw.walkCluster(ctx, el, end)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, clusterBlocks...)
		if next <= off {
			break
		}
		off = next
	}

	cw.log.Debug("linear scan finished", zap.Int("blocks", len(blocks)))
	return blocks, nil
}

// walkCluster walks one cluster's children and returns the subtitle blocks it
// holds plus the absolute offset where the next top-level element starts.
//
// For an unknown-sized cluster the end is found by running into a top-level
// Segment ID or the segment end.
func (cw *clusterWalker) walkCluster(ctx context.Context, cluster element, segmentEnd int64) ([]subtitleBlock, int64, error) {
	clusterEnd := segmentEnd
	if !cluster.unknownSize {
		clusterEnd = cluster.dataOffset + cluster.size
	}

	var blocks []subtitleBlock
	var clusterTs int64

	pos := cluster.dataOffset
	for pos < clusterEnd {
		el, err := peekElement(ctx, cw.r, pos)
		if err != nil {
			return blocks, clusterEnd, nil
		}

		if cluster.unknownSize && segmentLevelIDs[el.id] {
			// The sentinel that ends an unknown-sized cluster.
			return blocks, pos, nil
		}

		switch el.id {
		case IDTimestamp:
			data, errRead := cw.r.ReadAt(ctx, el.dataOffset, el.size)
			if errRead != nil {
				return nil, 0, errRead
			}
			clusterTs = int64(readUint(data))

		case IDSimpleBlock:
			block, errBlock := cw.readSimpleBlock(ctx, el, clusterTs)
			if errBlock != nil {
				return nil, 0, errBlock
			}
			if block != nil {
				blocks = append(blocks, *block)
			}

		case IDBlockGroup:
			block, errBlock := cw.readBlockGroup(ctx, el, clusterTs)
			if errBlock != nil {
				return nil, 0, errBlock
			}
			if block != nil {
				blocks = append(blocks, *block)
			}

		default:
			if el.unknownSize {
				// Nothing but Cluster may be unknown-sized below Segment
				// level; stop rather than guess at framing.
				return blocks, clusterEnd, nil
			}
		}

		if el.unknownSize {
			return blocks, clusterEnd, nil
		}
		pos = el.dataOffset + el.size
	}

	return blocks, clusterEnd, nil
}

// readSimpleBlock peeks the block's track number and fetches the element only
// when it belongs to a subtitle track.
func (cw *clusterWalker) readSimpleBlock(ctx context.Context, el element, clusterTs int64) (*subtitleBlock, error) {
	peek, err := cw.r.ReadAt(ctx, el.dataOffset, 8)
	if err != nil {
		return nil, err
	}
	track, _, ok := blockTrackNumber(peek)
	if !ok || !cw.tracks[track] {
		return nil, nil
	}

	data, err := cw.r.ReadAt(ctx, el.dataOffset, el.size)
	if err != nil {
		return nil, err
	}
	track, relTs, payload, err := parseBlockPayload(data)
	if err != nil || !cw.tracks[track] {
		return nil, nil
	}

	return &subtitleBlock{
		track:       track,
		timestampMs: ticksToMs(clusterTs+int64(relTs), cw.scale),
		durationMs:  -1,
		payload:     payload,
	}, nil
}

// readBlockGroup peeks into the group to locate the inner Block header and
// check its track number before deciding to fetch the whole group.
func (cw *clusterWalker) readBlockGroup(ctx context.Context, el element, clusterTs int64) (*subtitleBlock, error) {
	peek, err := cw.r.ReadAt(ctx, el.dataOffset, 32)
	if err != nil {
		return nil, err
	}

	// Walk child headers inside the peek window looking for Block. If the
	// window is exhausted before Block shows up, fetch the group anyway.
	pos := int64(0)
	for pos < int64(len(peek)) {
		child, errParse := parseElementAt(peek, pos)
		if errParse != nil || child.unknownSize {
			break
		}
		if child.id == IDBlock {
			if track, _, ok := blockTrackNumber(peek[child.dataOffset:]); ok && !cw.tracks[track] {
				return nil, nil
			}
			break
		}
		pos = child.dataOffset + child.size
	}

	data, err := cw.r.ReadAt(ctx, el.dataOffset, el.size)
	if err != nil {
		return nil, err
	}

	blockData, durationRaw, additions := parseBlockGroupData(data)
	if blockData == nil {
		return nil, nil
	}
	track, relTs, payload, err := parseBlockPayload(blockData)
	if err != nil || !cw.tracks[track] {
		return nil, nil
	}

	block := &subtitleBlock{
		track:       track,
		timestampMs: ticksToMs(clusterTs+int64(relTs), cw.scale),
		durationMs:  -1,
		payload:     payload,
		additions:   additions,
	}
	if durationRaw >= 0 {
		block.durationMs = ticksToMs(durationRaw, cw.scale)
	}
	return block, nil
}
