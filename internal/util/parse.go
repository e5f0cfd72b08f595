package util

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)([a-z]+)?$`)

// ParseBytes parses a size string (e.g., "100MB", "512KiB", "4096") and returns bytes.
// Decimal units (kb, mb, gb) are powers of 1000, binary units (kib, mib, gib) powers of 1024.
func ParseBytes(input string) (int64, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, errors.New("bytes value is empty")
	}

	match := sizePattern.FindStringSubmatch(s)
	if match == nil {
		return 0, fmt.Errorf("invalid bytes value %q", input)
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bytes value %q", input)
	}

	var mult float64
	switch match[2] {
	case "", "b":
		mult = 1
	case "k", "kb":
		mult = 1e3
	case "m", "mb":
		mult = 1e6
	case "g", "gb":
		mult = 1e9
	case "kib":
		mult = 1 << 10
	case "mib":
		mult = 1 << 20
	case "gib":
		mult = 1 << 30
	default:
		return 0, fmt.Errorf("unknown bytes unit %q", match[2])
	}
	out := value * mult
	if out > math.MaxInt64 {
		return 0, fmt.Errorf("bytes value %q too large", input)
	}
	return int64(math.Round(out)), nil
}
