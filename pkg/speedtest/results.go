package speedtest

import (
	"time"

	"github.com/NodePath81/cfspeed/internal/engine"
	"github.com/NodePath81/cfspeed/internal/stats"
)

// Result contains the outcome of a speed test. Rates in the summaries are
// bytes per second of wire traffic.
type Result struct {
	// MeasID is the measId sent with every request of the run.
	MeasID string `json:"meas_id"`
	// Policy is the statistic behind DownloadMbps and UploadMbps.
	Policy Policy `json:"policy"`
	// DownloadMbps is the headline download rate in megabits per second.
	DownloadMbps float64 `json:"download_mbps"`
	// UploadMbps is the headline upload rate in megabits per second.
	UploadMbps float64 `json:"upload_mbps"`
	// Download summarizes the per-second download samples.
	Download Summary `json:"download"`
	// Upload summarizes the per-second upload samples.
	Upload Summary `json:"upload"`
	// DownloadCompleted reports whether download ran its full duration.
	DownloadCompleted bool `json:"download_completed"`
	// UploadCompleted reports whether upload ran its full duration.
	UploadCompleted bool `json:"upload_completed"`
	// WireOverheadRatio is the share of downloaded bytes that was TLS framing.
	WireOverheadRatio float64 `json:"wire_overhead_ratio"`
	// EstimatedPayloadDownloadMbps is DownloadMbps without TLS framing.
	EstimatedPayloadDownloadMbps float64 `json:"estimated_payload_download_mbps"`
	// DownloadRetransmits is the kernel retransmit count (Linux only).
	DownloadRetransmits int64 `json:"download_retransmits"`
	// DownloadConnections is the number of download connections opened.
	DownloadConnections int64 `json:"download_connections"`
	// DownloadTCPRTT is the mean kernel RTT of download sockets (Linux only).
	DownloadTCPRTT time.Duration `json:"download_tcp_rtt"`
	// Snapshot holds the raw per-second samples.
	Snapshot Snapshot `json:"samples"`
}

func headline(policy Policy, s Summary) float64 {
	if policy == PolicyMedian {
		return stats.ToMbps(s.Median)
	}
	return stats.ToMbps(float64(s.P90))
}

func buildResult(measID string, policy Policy, snap Snapshot, wire engine.WireStats) Result {
	down := stats.Compute(snap.Download)
	up := stats.Compute(snap.Upload)
	res := Result{
		MeasID:              measID,
		Policy:              policy,
		DownloadMbps:        headline(policy, down),
		UploadMbps:          headline(policy, up),
		Download:            down,
		Upload:              up,
		DownloadCompleted:   snap.DownloadCompleted,
		UploadCompleted:     snap.UploadCompleted,
		WireOverheadRatio:   wire.OverheadRatio(),
		DownloadRetransmits: wire.Retransmits,
		DownloadConnections: wire.Connections,
		DownloadTCPRTT:      wire.MeanRTT,
		Snapshot:            snap,
	}
	res.EstimatedPayloadDownloadMbps = res.DownloadMbps * (1 - res.WireOverheadRatio)
	return res
}
