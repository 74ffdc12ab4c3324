package internaldefs

import (
	gatehouse "github.com/skelhorn/gatehouse"
)

// CounterDef binds one engine counter to its exported name and help text.
type CounterDef struct {
	ID   gatehouse.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name and help
// text.
type HistogramDef struct {
	ID   gatehouse.MetricID
	Name string
	Help string
}

// CounterDefs is the canonical counter table shared by all exporters.
var CounterDefs = []CounterDef{
	{ID: gatehouse.MetricAdmitAllowed, Name: "gatehouse_admit_allowed_total", Help: "Admission checks that passed."},
	{ID: gatehouse.MetricAdmitRejected, Name: "gatehouse_admit_rejected_total", Help: "Admission checks that were denied."},
	{ID: gatehouse.MetricAdmitForgiven, Name: "gatehouse_admit_forgiven_total", Help: "Success-exempt admission reversals."},
	{ID: gatehouse.MetricFallbackActivated, Name: "gatehouse_fallback_activated_total", Help: "Failovers to the in-process counter store."},
	{ID: gatehouse.MetricFallbackRecovered, Name: "gatehouse_fallback_recovered_total", Help: "Recoveries back to the shared counter store."},
	{ID: gatehouse.MetricTokenIssued, Name: "gatehouse_token_issued_total", Help: "Issued token pairs."},
	{ID: gatehouse.MetricTokenVerifyFailure, Name: "gatehouse_token_verify_failure_total", Help: "Failed access-token verifications."},
	{ID: gatehouse.MetricTokenRevoked, Name: "gatehouse_token_revoked_total", Help: "Token revocation operations."},
	{ID: gatehouse.MetricRefreshRotated, Name: "gatehouse_refresh_rotated_total", Help: "Successful refresh rotations."},
	{ID: gatehouse.MetricRefreshReplay, Name: "gatehouse_refresh_replay_total", Help: "Refresh attempts with a consumed or unknown token."},
	{ID: gatehouse.MetricCodeRequested, Name: "gatehouse_code_requested_total", Help: "One-time code issuances."},
	{ID: gatehouse.MetricCodeVerified, Name: "gatehouse_code_verified_total", Help: "Successful one-time code verifications."},
	{ID: gatehouse.MetricCodeMismatch, Name: "gatehouse_code_mismatch_total", Help: "Wrong-code submissions."},
	{ID: gatehouse.MetricCodeExhausted, Name: "gatehouse_code_exhausted_total", Help: "Codes invalidated by the attempt cap."},
	{ID: gatehouse.MetricCsrfIssued, Name: "gatehouse_csrf_issued_total", Help: "Issued CSRF tokens."},
	{ID: gatehouse.MetricCsrfConsumed, Name: "gatehouse_csrf_consumed_total", Help: "Successfully consumed CSRF tokens."},
	{ID: gatehouse.MetricCsrfRejected, Name: "gatehouse_csrf_rejected_total", Help: "Rejected CSRF consumptions."},
}

// HistogramDefs is the canonical histogram table shared by all exporters.
var HistogramDefs = []HistogramDef{
	{ID: gatehouse.MetricAdmitLatency, Name: "gatehouse_admit_latency_seconds", Help: "Admission check latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's fixed buckets, in
// seconds, as rendered in Prometheus le labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// OTel instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
