package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of heights in the range.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// NextRange returns the heights after cursor up to head, capped at maxBlocks.
// ok is false when there is nothing to scan.
func NextRange(cursor, head, maxBlocks uint64) (BlockRange, bool, error) {
	if maxBlocks == 0 {
		return BlockRange{}, false, fmt.Errorf("max blocks must be greater than zero")
	}
	if head <= cursor {
		return BlockRange{}, false, nil
	}

	from := cursor + 1
	to := head
	if head-cursor > maxBlocks {
		to = cursor + maxBlocks
	}
	return BlockRange{From: from, To: to}, true, nil
}
