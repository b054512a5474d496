package highlight

import (
	"fmt"

	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/pkg/diskslice"
)

// RollingBuffer is an append-only rolling window over the chunk stream,
// indexed by absolute sequence number so that truncation of older entries
// never shifts a caller's window-start arithmetic. Large windows spill to
// disk transparently via diskslice.
type RollingBuffer struct {
	store    *diskslice.DiskSlice[models.BaseChunk]
	dropped  int // absolute sequence index of store's element 0
	maxCache int
}

// NewRollingBuffer creates a buffer retaining at most maxCache chunks.
func NewRollingBuffer(maxCache int) (*RollingBuffer, error) {
	store, err := diskslice.NewWithDefaults[models.BaseChunk]()
	if err != nil {
		return nil, fmt.Errorf("highlight: creating rolling buffer: %w", err)
	}
	return &RollingBuffer{store: store, maxCache: maxCache}, nil
}

// Append adds chunk, truncating the oldest entries once the buffer exceeds
// maxCache.
func (b *RollingBuffer) Append(chunk models.BaseChunk) error {
	if err := b.store.Append(chunk); err != nil {
		return fmt.Errorf("highlight: appending chunk %d: %w", chunk.Sequence, err)
	}
	if b.store.Len() > b.maxCache {
		return b.truncate()
	}
	return nil
}

// truncate keeps only the most recent maxCache entries, rebuilding the
// backing store and advancing dropped by the number of entries removed.
func (b *RollingBuffer) truncate() error {
	all, err := b.store.ToSlice()
	if err != nil {
		return fmt.Errorf("highlight: truncating buffer: %w", err)
	}
	remove := len(all) - b.maxCache
	kept := all[remove:]

	fresh, err := diskslice.NewWithDefaults[models.BaseChunk]()
	if err != nil {
		return fmt.Errorf("highlight: truncating buffer: %w", err)
	}
	if err := fresh.AppendSlice(kept); err != nil {
		return fmt.Errorf("highlight: truncating buffer: %w", err)
	}

	_ = b.store.Close()
	b.store = fresh
	b.dropped += remove
	return nil
}

// OldestIndex returns the absolute sequence index of the oldest
// still-cached chunk.
func (b *RollingBuffer) OldestIndex() int {
	return b.dropped
}

// Window extracts the W-chunk window starting at absolute index start. ok
// is false if any chunk in [start, start+size) has already fallen out of
// cache or hasn't arrived yet.
func (b *RollingBuffer) Window(start, size int) (models.Window, bool, error) {
	localStart := start - b.dropped
	if localStart < 0 || localStart+size > b.store.Len() {
		return models.Window{}, false, nil
	}
	chunks := make([]models.BaseChunk, size)
	for i := 0; i < size; i++ {
		item, err := b.store.Get(localStart + i)
		if err != nil {
			return models.Window{}, false, fmt.Errorf("highlight: reading window chunk: %w", err)
		}
		chunks[i] = *item
	}
	return models.Window{StartIndex: start, Chunks: chunks}, true, nil
}

// Close releases the buffer's backing storage.
func (b *RollingBuffer) Close() error {
	return b.store.Close()
}
