package engine

import (
	"slices"
	"sync"
)

// Snapshot is a copy of the published samples. Safe to keep and modify.
type Snapshot struct {
	Download          []int64 `json:"download"`
	Upload            []int64 `json:"upload"`
	DownloadCompleted bool    `json:"download_completed"`
	UploadCompleted   bool    `json:"upload_completed"`
}

// Samples returns the per-second samples of dir with their indexes.
func (s Snapshot) Samples(dir Direction) []Sample {
	src := s.Download
	if dir == DirectionUpload {
		src = s.Upload
	}
	out := make([]Sample, len(src))
	for i, v := range src {
		out[i] = Sample{Direction: dir, Second: i + 1, Bytes: v}
	}
	return out
}

// Completed reports whether dir finished its full duration.
func (s Snapshot) Completed(dir Direction) bool {
	if dir == DirectionUpload {
		return s.UploadCompleted
	}
	return s.DownloadCompleted
}

// Results is the shared record of a speed test, written by the orchestrator
// and read by live observers and the interrupt path.
type Results struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewResults() *Results {
	return &Results{}
}

// TryPublish replaces the samples of dir unless another goroutine holds the
// lock, in which case the update is dropped and false is returned.
func (r *Results) TryPublish(dir Direction, samples []int64) bool {
	if !r.mu.TryLock() {
		return false
	}
	defer r.mu.Unlock()
	r.set(dir, samples)
	return true
}

// Publish replaces the samples of dir, waiting for the lock.
func (r *Results) Publish(dir Direction, samples []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(dir, samples)
}

// Complete publishes the final samples of dir and marks it completed.
func (r *Results) Complete(dir Direction, samples []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.Completed(dir) {
		return ErrAlreadyCompleted
	}
	r.set(dir, samples)
	if dir == DirectionUpload {
		r.snap.UploadCompleted = true
	} else {
		r.snap.DownloadCompleted = true
	}
	return nil
}

func (r *Results) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Download:          slices.Clone(r.snap.Download),
		Upload:            slices.Clone(r.snap.Upload),
		DownloadCompleted: r.snap.DownloadCompleted,
		UploadCompleted:   r.snap.UploadCompleted,
	}
}

func (r *Results) set(dir Direction, samples []int64) {
	cp := slices.Clone(samples)
	if dir == DirectionUpload {
		r.snap.Upload = cp
	} else {
		r.snap.Download = cp
	}
}
