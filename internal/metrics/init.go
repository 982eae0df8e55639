package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)

	for _, status := range []string{"success", "no_chunks", "error"} {
		UploadMergesTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "failed"} {
		ProcessingJobsTotal.WithLabelValues(status)
		ArchiveUploadsTotal.WithLabelValues(status)
	}

	for _, step := range ProcessingSteps {
		ProcessingStepDuration.WithLabelValues(step)
		ProcessingStepFailures.WithLabelValues(step)
	}

	for _, method := range []string{"password", "google", "facebook"} {
		AuthAttemptsTotal.WithLabelValues(method, "success")
		AuthAttemptsTotal.WithLabelValues(method, "failure")
	}

	for _, purpose := range []string{"signup", "password_reset"} {
		OTPIssuedTotal.WithLabelValues(purpose)
	}

	for _, kind := range []string{"otp", "video"} {
		EmailsSentTotal.WithLabelValues(kind, "success")
		EmailsSentTotal.WithLabelValues(kind, "error")
	}

	for _, status := range []string{"processing", "completed", "failed"} {
		VideosTotal.WithLabelValues(status)
	}

	for _, op := range []string{"create_user", "get_user", "validate_password", "create_session",
		"validate_session", "create_video", "get_video", "list_videos", "update_video",
		"transfer_videos", "delete_video", "issue_otp", "consume_otp"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}

// ProcessingSteps lists the post-upload pipeline steps in execution order.
var ProcessingSteps = []string{"validate", "probe", "compress", "thumbnail", "audio", "transcript", "archive"}
