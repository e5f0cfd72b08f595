package util

import "testing"

func TestByteUnits(t *testing.T) {
	cases := []struct {
		in    int64
		bytes string
		bits  string
	}{
		{0, "0.00 B", "0.00 b"},
		{100, "100.00 B", "800.00 b"},
		{814811, "795.71 KB", "6.37 Mb"},
		{12939428, "12.34 MB", "98.72 Mb"},
		{-5, "0.00 B", "0.00 b"},
	}
	for _, tc := range cases {
		b, bits := ByteUnits(tc.in)
		if b != tc.bytes || bits != tc.bits {
			t.Fatalf("ByteUnits(%d) = (%q, %q), want (%q, %q)", tc.in, b, bits, tc.bytes, tc.bits)
		}
	}
}

func TestRateUnits(t *testing.T) {
	b, bits := RateUnits(2048)
	if b != "2.00 KB/s" || bits != "16.00 kbit/s" {
		t.Fatalf("RateUnits(2048) = (%q, %q)", b, bits)
	}
}

func TestParseBytes(t *testing.T) {
	cases := map[string]int64{
		"4096":  4096,
		"100MB": 100_000_000,
		"25 mb": 25_000_000,
		"1.5kb": 1500,
		"1MiB":  1 << 20,
		"2g":    2_000_000_000,
	}
	for in, want := range cases {
		got, err := ParseBytes(in)
		if err != nil {
			t.Fatalf("ParseBytes(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseBytes(%q) = %d, want %d", in, got, want)
		}
	}
	for _, bad := range []string{"", "abc", "10xb", "-1mb"} {
		if _, err := ParseBytes(bad); err == nil {
			t.Fatalf("ParseBytes(%q) expected error", bad)
		}
	}
}
