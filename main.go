package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	ghandlers "github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"helpmeout/internal/archive"
	"helpmeout/internal/database"
	"helpmeout/internal/handlers"
	"helpmeout/internal/logging"
	"helpmeout/internal/mailer"
	"helpmeout/internal/metrics"
	"helpmeout/internal/middleware"
	"helpmeout/internal/oauth"
	"helpmeout/internal/processor"
	"helpmeout/internal/recording"
	"helpmeout/internal/startup"
	"helpmeout/internal/transcoder"
	"helpmeout/internal/transcript"
)

const sessionCleanupInterval = time.Hour

func main() {
	startTime := time.Now()
	defer logging.Sync()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics(startup.Version, startup.Commit, startup.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error("Failed to close database: %v", err)
		}
	}()
	startup.LogDatabaseInit(time.Since(dbStart))

	store := recording.NewChunkStore(config.UploadDir, config.MaxChunkBytes)

	startup.LogTranscoderInit(config.FFmpegPath, config.FFprobePath)
	trans := transcoder.New(config.FFmpegPath, config.FFprobePath)

	transcriber := transcript.NewClient(config.DeepgramURL, config.DeepgramAPIKey, nil)

	var archiver processor.Archiver
	if config.Archive.Bucket != "" {
		arc, err := archive.New(ctx, archive.Config{
			Bucket:    config.Archive.Bucket,
			Prefix:    config.Archive.Prefix,
			Region:    config.Archive.Region,
			Endpoint:  config.Archive.Endpoint,
			AccessKey: config.Archive.AccessKey,
			SecretKey: config.Archive.SecretKey,
		})
		if err != nil {
			logging.Fatal("Failed to initialize archive: %v", err)
		}
		archiver = arc
	}

	proc := processor.New(db, trans, transcriber, archiver, processor.Config{
		ThumbnailWidth:  config.ThumbnailWidth,
		ThumbnailHeight: config.ThumbnailHeight,
		Workers:         config.ProcessorWorkers,
	})

	mail, err := mailer.New(mailer.Config{
		Host:     config.SMTP.Host,
		Port:     config.SMTP.Port,
		Username: config.SMTP.Username,
		Password: config.SMTP.Password,
		From:     config.SMTP.From,
	})
	if err != nil {
		logging.Fatal("Failed to initialize mailer: %v", err)
	}

	sso := oauth.NewManager(config.StateSecret, config.BaseURL,
		oauth.Credentials{ClientID: config.Google.ClientID, ClientSecret: config.Google.ClientSecret},
		oauth.Credentials{ClientID: config.Facebook.ClientID, ClientSecret: config.Facebook.ClientSecret},
	)

	// Initialize handlers
	h := handlers.New(db, store, proc, mail, sso, config)

	// Setup router
	router := h.Router()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	var handler http.Handler = router
	handler = ghandlers.RecoveryHandler(ghandlers.PrintRecoveryStack(logging.IsDebugEnabled()))(handler)
	if len(config.CORSOrigins) > 0 {
		handler = ghandlers.CORS(
			ghandlers.AllowedOrigins(config.CORSOrigins),
			ghandlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
			ghandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Range", middleware.RequestIDHeader}),
			ghandlers.ExposedHeaders([]string{"Content-Disposition", "Content-Range", middleware.RequestIDHeader}),
			ghandlers.AllowCredentials(),
		)(handler)
	}

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)
	handler = middleware.RequestID(handler)

	// Create server
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Chunk uploads and streams can be slow; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(db, config.StatsInterval)
		collector.Start()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// Clean up expired sessions periodically
	g.Go(func() error {
		cleanExpiredSessions(gctx, db)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		handleShutdown(ctx, config.ShutdownTimeout, srv, metricsSrv, proc, trans, collector)
		return nil
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := g.Wait(); err != nil {
		logging.Fatal("Server error: %v", err)
	}
}

func cleanExpiredSessions(ctx context.Context, db *database.Database) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := db.CleanExpiredSessions(ctx)
			if err != nil {
				logging.Error("Failed to clean expired sessions: %v", err)
				continue
			}
			if removed > 0 {
				logging.Debug("Removed %d expired sessions", removed)
			}
		}
	}
}

func handleShutdown(sigCtx context.Context, timeout time.Duration, srv, metricsSrv *http.Server, proc *processor.Processor, trans *transcoder.Transcoder, collector *metrics.Collector) {
	reason := "server error"
	if sigCtx.Err() != nil {
		reason = "signal"
	}
	startup.LogShutdownInitiated(reason)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Waiting for video processing")
	if err := proc.Shutdown(ctx); err != nil {
		logging.Warn("Video processing did not finish: %v", err)
	} else {
		startup.LogShutdownStepComplete("Video processing finished")
	}

	startup.LogShutdownStep("Cleaning up transcoder")
	trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	if collector != nil {
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
