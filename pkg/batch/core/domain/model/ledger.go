package model

import (
	"slices"
	"time"
)

// Ledger is the chunk-level resumability record. ProcessedChunks only grows;
// an identifier is added after its chunk completed successfully.
type Ledger struct {
	LastUpdated        time.Time `json:"last_updated"`
	ProcessedChunks    []string  `json:"processed_chunks"`
	TotalChunks        int       `json:"total_chunks"`
	ProgressPercentage float64   `json:"progress_percentage"`
}

// NewLedger returns an empty ledger for totalChunks chunks.
func NewLedger(totalChunks int) *Ledger {
	return &Ledger{ProcessedChunks: []string{}, TotalChunks: totalChunks}
}

// IsProcessed reports whether chunkID has been recorded.
func (l *Ledger) IsProcessed(chunkID string) bool {
	return slices.Contains(l.ProcessedChunks, chunkID)
}

// MarkProcessed records chunkID. It returns false when the identifier was
// already present, in which case the ledger is left unchanged.
func (l *Ledger) MarkProcessed(chunkID string, now time.Time) bool {
	if l.IsProcessed(chunkID) {
		return false
	}
	l.ProcessedChunks = append(l.ProcessedChunks, chunkID)
	l.LastUpdated = now.UTC()
	l.recompute()
	return true
}

// SetTotal updates the expected chunk count and the derived percentage.
func (l *Ledger) SetTotal(totalChunks int) {
	l.TotalChunks = totalChunks
	l.recompute()
}

// Pending filters chunks down to those not yet recorded, preserving order.
func (l *Ledger) Pending(chunks []Chunk) []Chunk {
	pending := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !l.IsProcessed(c.ID()) {
			pending = append(pending, c)
		}
	}
	return pending
}

func (l *Ledger) recompute() {
	if l.TotalChunks <= 0 {
		l.ProgressPercentage = 0
		return
	}
	pct := float64(len(l.ProcessedChunks)) / float64(l.TotalChunks) * 100
	l.ProgressPercentage = Round2(min(pct, 100))
}
