package mkvsubs

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// blockSizeEstimate pads each batch read past its last target so the
	// final element usually fits without a follow-up read.
	blockSizeEstimate = 4 << 10

	// denseGapCeiling separates clustered targets from widely spaced ones.
	denseGapCeiling = 2 << 20

	// sparseBatchThreshold merges only coincidentally close pairs when the
	// median gap says the targets are spread across the file.
	sparseBatchThreshold = 128 << 10

	minBatchThreshold = 32 << 10
	maxBatchThreshold = 2 << 20
)

// blockTarget is one Cue-addressed block: the absolute file offset of its
// element header and the absolute time the Cue already established.
type blockTarget struct {
	off    int64
	timeMs int64
}

// targetedFetcher turns Cue entries into a small number of coalesced range
// reads.
type targetedFetcher struct {
	r           *RangeReader
	layout      *segmentLayout
	tracks      map[uint64]bool
	concurrency int
	log         *zap.Logger
}

// fetch resolves every cue to a block. Cues whose cluster carries relative
// positions become direct targets read in batches; clusters where any entry
// lacks a relative position are walked whole, sequentially, afterwards.
func (tf *targetedFetcher) fetch(ctx context.Context, cues []cueEntry) ([]subtitleBlock, error) {
	byCluster := make(map[int64][]cueEntry)
	for _, cue := range cues {
		byCluster[cue.clusterPos] = append(byCluster[cue.clusterPos], cue)
	}

	var directClusters, fallbackClusters []int64
	for pos, entries := range byCluster {
		direct := true
		for _, cue := range entries {
			if cue.relativePos < 0 {
				direct = false
				break
			}
		}
		if direct {
			directClusters = append(directClusters, pos)
		} else {
			fallbackClusters = append(fallbackClusters, pos)
		}
	}
	sort.Slice(directClusters, func(i, j int) bool { return directClusters[i] < directClusters[j] })
	sort.Slice(fallbackClusters, func(i, j int) bool { return fallbackClusters[i] < fallbackClusters[j] })

	var blocks []subtitleBlock

	if len(directClusters) > 0 {
		headerWidth, err := tf.clusterHeaderWidth(ctx, directClusters[0])
		if err != nil {
			return nil, err
		}

		var targets []blockTarget
		for _, pos := range directClusters {
			for _, cue := range byCluster[pos] {
				targets = append(targets, blockTarget{
					off:    tf.layout.dataOffset + cue.clusterPos + headerWidth + cue.relativePos,
					timeMs: ticksToMs(int64(cue.time), tf.layout.timestampScale),
				})
			}
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].off < targets[j].off })

		batches := groupTargets(targets, batchThreshold(targetGaps(targets)))
		tf.log.Debug("targeted fetch planned",
			zap.Int("targets", len(targets)),
			zap.Int("batches", len(batches)))

		batched, err := tf.fetchBatches(ctx, batches)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, batched...)
	}

	// Fallback clusters are walked whole, always sequentially.
	walker := &clusterWalker{r: tf.r, scale: tf.layout.timestampScale, tracks: tf.tracks, log: tf.log}
	segmentEnd := tf.layout.dataOffset + tf.layout.dataSize
	for _, pos := range fallbackClusters {
		cluster, err := peekElement(ctx, tf.r, tf.layout.dataOffset+pos)
		if err != nil || cluster.id != IDCluster {
			continue
		}
		clusterBlocks, _, err := walker.walkCluster(ctx, cluster, segmentEnd)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, clusterBlocks...)
	}

	// Parallel batches can interleave; restore timestamp order.
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].timestampMs < blocks[j].timestampMs })
	return blocks, nil
}

// clusterHeaderWidth measures the encoded header length of one cluster. All
// clusters in a valid file use the same data-size VINT width, so the result
// is reused for every relative-position computation.
func (tf *targetedFetcher) clusterHeaderWidth(ctx context.Context, clusterPos int64) (int64, error) {
	el, err := peekElement(ctx, tf.r, tf.layout.dataOffset+clusterPos)
	if err != nil {
		return 0, parseErrorf("unreadable cluster header at cue position %d: %v", clusterPos, err)
	}
	if el.id != IDCluster {
		return 0, parseErrorf("cue points at offset %d but no cluster found there", clusterPos)
	}
	return el.headerLen(), nil
}

// targetGaps returns the distances between consecutive sorted targets.
func targetGaps(targets []blockTarget) []int64 {
	var gaps []int64
	for i := 1; i < len(targets); i++ {
		gaps = append(gaps, targets[i].off-targets[i-1].off)
	}
	return gaps
}

// batchThreshold derives the gap above which a new batch starts.
//
// The median gap G decides the regime: clustered data (G below 2 MiB) merges
// aggressively at clamp(2G, 32 KiB, 2 MiB); widely spaced targets merge only
// when coincidentally close. The raw median can be skewed by a single distant
// cluster; a trimmed median would also satisfy the contract, but raw matches
// the established behavior.
func batchThreshold(gaps []int64) int64 {
	if len(gaps) == 0 {
		return minBatchThreshold
	}

	sorted := append([]int64(nil), gaps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	median := sorted[len(sorted)/2]

	if median >= denseGapCeiling {
		return sparseBatchThreshold
	}
	threshold := 2 * median
	if threshold < minBatchThreshold {
		threshold = minBatchThreshold
	}
	if threshold > maxBatchThreshold {
		threshold = maxBatchThreshold
	}
	return threshold
}

// groupTargets splits sorted targets into batches, starting a new batch
// whenever the gap to the previous target exceeds threshold.
func groupTargets(targets []blockTarget, threshold int64) [][]blockTarget {
	var batches [][]blockTarget
	for i, t := range targets {
		if i == 0 || t.off-targets[i-1].off > threshold {
			batches = append(batches, []blockTarget{t})
			continue
		}
		batches[len(batches)-1] = append(batches[len(batches)-1], t)
	}
	return batches
}

// fetchBatches reads every batch, through a bounded worker pool when more
// than one worker was requested. Results keep batch order; the caller sorts
// by time anyway.
func (tf *targetedFetcher) fetchBatches(ctx context.Context, batches [][]blockTarget) ([]subtitleBlock, error) {
	results := make([][]subtitleBlock, len(batches))

	if tf.concurrency > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(tf.concurrency)
		for i, batch := range batches {
			g.Go(func() error {
				blocks, err := tf.fetchBatch(gctx, batch)
				if err != nil {
					return err
				}
				results[i] = blocks
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, batch := range batches {
			blocks, err := tf.fetchBatch(ctx, batch)
			if err != nil {
				return nil, err
			}
			results[i] = blocks
		}
	}

	var blocks []subtitleBlock
	for _, r := range results {
		blocks = append(blocks, r...)
	}
	return blocks, nil
}

// fetchBatch covers all targets of one batch with a single range read, then
// parses each target in place. A target whose element overflows the batch
// buffer gets an individual follow-up read sized from its header.
func (tf *targetedFetcher) fetchBatch(ctx context.Context, batch []blockTarget) ([]subtitleBlock, error) {
	first := batch[0].off
	length := batch[len(batch)-1].off + blockSizeEstimate - first

	buf, err := tf.r.ReadAt(ctx, first, length)
	if err != nil {
		return nil, err
	}

	var blocks []subtitleBlock
	for _, target := range batch {
		local := target.off - first

		data, id, ok := tf.elementData(buf, local)
		if !ok {
			// Header or body truncated by the batch window; read it alone.
			el, errPeek := peekElement(ctx, tf.r, target.off)
			if errPeek != nil || el.unknownSize {
				continue
			}
			full, errRead := tf.r.ReadAt(ctx, el.dataOffset, el.size)
			if errRead != nil {
				return nil, errRead
			}
			data, id = full, el.id
		}

		if block := tf.blockFromElement(id, data, target.timeMs); block != nil {
			blocks = append(blocks, *block)
		}
	}
	return blocks, nil
}

// elementData parses the element header at local and returns its body when it
// lies fully inside buf.
func (tf *targetedFetcher) elementData(buf []byte, local int64) ([]byte, uint64, bool) {
	if local < 0 || local >= int64(len(buf)) {
		return nil, 0, false
	}
	el, err := parseElementAt(buf, local)
	if err != nil || el.unknownSize || el.dataOffset+el.size > int64(len(buf)) {
		return nil, 0, false
	}
	return buf[el.dataOffset : el.dataOffset+el.size], el.id, true
}

// blockFromElement assembles a subtitle block from a Cue-addressed element.
// The Cue already carries absolute time, so the in-block relative timestamp
// is ignored. Targets for non-subtitle tracks are dropped; Cues are filtered
// upstream, but the check here is cheap.
func (tf *targetedFetcher) blockFromElement(id uint64, data []byte, timeMs int64) *subtitleBlock {
	switch id {
	case IDSimpleBlock:
		track, _, payload, err := parseBlockPayload(data)
		if err != nil || !tf.tracks[track] {
			return nil
		}
		return &subtitleBlock{track: track, timestampMs: timeMs, durationMs: -1, payload: payload}

	case IDBlockGroup:
		blockData, durationRaw, additions := parseBlockGroupData(data)
		if blockData == nil {
			return nil
		}
		track, _, payload, err := parseBlockPayload(blockData)
		if err != nil || !tf.tracks[track] {
			return nil
		}
		block := &subtitleBlock{track: track, timestampMs: timeMs, durationMs: -1, payload: payload, additions: additions}
		if durationRaw >= 0 {
			block.durationMs = ticksToMs(durationRaw, tf.layout.timestampScale)
		}
		return block

	default:
		return nil
	}
}
