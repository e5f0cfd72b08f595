package engine

const (
	minReadBuffer = 4 << 10
	maxReadBuffer = 16 << 20
)

// BufferSize picks the download read size from the last observed rate.
// Slow links get small reads, fast links big ones so a syscall moves more
// data. The result never decreases as the rate grows.
func BufferSize(bytesPerSec int64) int {
	switch {
	case bytesPerSec <= 1_000:
		return minReadBuffer
	case bytesPerSec <= 10_000:
		return 32 << 10
	case bytesPerSec <= 100_000:
		return 512 << 10
	case bytesPerSec <= 1_000_000:
		return 4 << 20
	default:
		return maxReadBuffer
	}
}
