package metrics

import (
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsAreRegistered(t *testing.T) {
	tests := []struct {
		name string
		use  func()
	}{
		{"http", func() {
			HTTPRequestsTotal.WithLabelValues("GET", "/srce/api/recording/{video_id}", "200").Inc()
			HTTPRequestDuration.WithLabelValues("GET", "/srce/api/recording/{video_id}").Observe(0.1)
			HTTPRequestsInFlight.Inc()
			HTTPRequestsInFlight.Dec()
		}},
		{"database", func() {
			DBQueryTotal.WithLabelValues("get_video", "success").Inc()
			DBQueryDuration.WithLabelValues("get_video").Observe(0.002)
			DBConnectionsOpen.Set(1)
		}},
		{"upload", func() {
			UploadChunksTotal.Inc()
			UploadBytesTotal.Add(1024)
			UploadMergesTotal.WithLabelValues("success").Inc()
			UploadMergeDuration.Observe(0.3)
		}},
		{"processing", func() {
			ProcessingJobsInProgress.Inc()
			ProcessingStepDuration.WithLabelValues("compress").Observe(12)
			ProcessingStepFailures.WithLabelValues("transcript").Inc()
			ProcessingJobsTotal.WithLabelValues("failed").Inc()
			ProcessingJobsInProgress.Dec()
		}},
		{"auth", func() {
			AuthAttemptsTotal.WithLabelValues("password", "success").Inc()
			OTPIssuedTotal.WithLabelValues("signup").Inc()
			EmailsSentTotal.WithLabelValues("otp", "success").Inc()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("using %s metrics panicked: %v", tt.name, r)
				}
			}()
			tt.use()
		})
	}
}

func TestUploadCounters(t *testing.T) {
	before := testutil.ToFloat64(UploadBytesTotal)
	UploadBytesTotal.Add(512)
	if got := testutil.ToFloat64(UploadBytesTotal) - before; got != 512 {
		t.Errorf("UploadBytesTotal delta = %v, want 512", got)
	}
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics("v1.0.0", "abc123", runtime.Version())

	if got := testutil.ToFloat64(AppInfo.WithLabelValues("v1.0.0", "abc123", runtime.Version())); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}

	if n := testutil.CollectAndCount(ProcessingStepFailures); n < len(ProcessingSteps) {
		t.Errorf("ProcessingStepFailures has %d series, want at least %d", n, len(ProcessingSteps))
	}

	if n := testutil.CollectAndCount(AuthAttemptsTotal); n < 6 {
		t.Errorf("AuthAttemptsTotal has %d series, want at least 6", n)
	}
}

func TestProcessingStepsOrder(t *testing.T) {
	if ProcessingSteps[0] != "validate" {
		t.Errorf("first step = %q, want validate", ProcessingSteps[0])
	}
	if ProcessingSteps[len(ProcessingSteps)-1] != "archive" {
		t.Errorf("last step = %q, want archive", ProcessingSteps[len(ProcessingSteps)-1])
	}
}
