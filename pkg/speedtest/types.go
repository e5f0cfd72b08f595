package speedtest

import (
	"github.com/NodePath81/cfspeed/internal/engine"
	"github.com/NodePath81/cfspeed/internal/stats"
)

// Summary is the distribution of one direction's per-second samples in
// bytes per second.
type Summary = stats.Summary

// Snapshot is a copy of the per-second samples collected so far together
// with the completion flags of both directions.
type Snapshot = engine.Snapshot

// Direction selects download or upload in Snapshot.Samples.
type Direction = engine.Direction

// Sample is one per-second measurement; Second starts at 1.
type Sample = engine.Sample

const (
	DirectionDownload = engine.DirectionDownload
	DirectionUpload   = engine.DirectionUpload
)

// SnapshotSource yields the samples of a running test.
type SnapshotSource interface {
	Snapshot() Snapshot
}
