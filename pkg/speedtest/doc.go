// Package speedtest provides a programmatic API for measuring bandwidth
// against speed.cloudflare.com.
//
// Callers build a Test with New and call Run, or use the package-level Run
// with a Config. While a Test runs, Live returns the samples collected so far.
package speedtest
