package util

import "fmt"

var (
	byteUnits = []string{"", "K", "M", "G", "T"}
	bitUnits  = []string{"", "k", "M", "G", "T", "P"}
)

// ByteUnits renders a byte count twice: 1024-based bytes and 1000-based bits
// derived from it, e.g. 12939428 -> ("12.34 MB", "98.72 Mb").
func ByteUnits(bytes int64) (string, string) {
	if bytes < 0 {
		bytes = 0
	}
	value := float64(bytes)
	level := 0
	for value >= 1024 && level < len(byteUnits)-1 {
		value /= 1024
		level++
	}
	unit := byteUnits[level]
	bits := value * 8
	bitUnit := bitUnits[level]
	if bits >= 1000 {
		bits /= 1000
		bitUnit = bitUnits[level+1]
	}
	return fmt.Sprintf("%.2f %sB", value, unit), fmt.Sprintf("%.2f %sb", bits, bitUnit)
}

// RateUnits is ByteUnits for per-second values.
func RateUnits(bytesPerSec int64) (string, string) {
	b, bits := ByteUnits(bytesPerSec)
	return b + "/s", bits + "it/s"
}

// FormatMbps formats a megabit-per-second value.
func FormatMbps(mbps float64) string {
	if mbps < 0 {
		mbps = 0
	}
	return fmt.Sprintf("%.2f Mbps", mbps)
}
