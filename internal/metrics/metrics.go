// Package metrics renders live results in the Prometheus text format.
package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/NodePath81/cfspeed/internal/engine"
	"github.com/NodePath81/cfspeed/internal/stats"
)

// Source yields the current results.
type Source interface {
	Snapshot() engine.Snapshot
}

type Metrics struct {
	source    Source
	startTime time.Time
}

func NewMetrics(source Source) *Metrics {
	return &Metrics{source: source, startTime: time.Now()}
}

func (m *Metrics) Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(m.Render()))
}

func (m *Metrics) Render() string {
	snap := m.source.Snapshot()
	dirs := []engine.Direction{engine.DirectionDownload, engine.DirectionUpload}
	series := map[engine.Direction][]int64{
		engine.DirectionDownload: snap.Download,
		engine.DirectionUpload:   snap.Upload,
	}

	var b strings.Builder
	gauge := func(name string, value func(engine.Direction) float64) {
		b.WriteString("# TYPE cfspeed_")
		b.WriteString(name)
		b.WriteString(" gauge\n")
		for _, dir := range dirs {
			b.WriteString("cfspeed_")
			b.WriteString(name)
			b.WriteString("{direction=\"")
			b.WriteString(dir.String())
			b.WriteString("\"} ")
			b.WriteString(formatFloat(value(dir)))
			b.WriteString("\n")
		}
	}

	gauge("throughput_bytes_per_second", func(d engine.Direction) float64 {
		samples := series[d]
		if len(samples) == 0 {
			return 0
		}
		return float64(samples[len(samples)-1])
	})
	gauge("p90_bytes_per_second", func(d engine.Direction) float64 {
		return float64(stats.Compute(series[d]).P90)
	})
	gauge("median_bytes_per_second", func(d engine.Direction) float64 {
		return stats.Compute(series[d]).Median
	})
	gauge("transferred_bytes", func(d engine.Direction) float64 {
		var sum int64
		for _, v := range series[d] {
			sum += v
		}
		return float64(sum)
	})
	gauge("samples", func(d engine.Direction) float64 {
		return float64(len(series[d]))
	})
	gauge("completed", func(d engine.Direction) float64 {
		if snap.Completed(d) {
			return 1
		}
		return 0
	})

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	b.WriteString("# TYPE cfspeed_memory_alloc_bytes gauge\n")
	b.WriteString("cfspeed_memory_alloc_bytes ")
	b.WriteString(strconv.FormatUint(mem.Alloc, 10))
	b.WriteString("\n")
	b.WriteString("# TYPE cfspeed_uptime_seconds gauge\n")
	b.WriteString("cfspeed_uptime_seconds ")
	b.WriteString(formatFloat(time.Since(m.startTime).Seconds()))
	b.WriteString("\n")
	return b.String()
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', 6, 64)
}
