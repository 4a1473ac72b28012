// Command mediavaultd runs the ingestion core: it loads configuration,
// opens the entity store, wires every ingestion component together, and
// serves the minimal operability surface (§A.5) until signaled to stop.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/api"
	"github.com/mantonx/mediavault/internal/clock"
	"github.com/mantonx/mediavault/internal/config"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/analyzer"
	"github.com/mantonx/mediavault/internal/ingest/dedup"
	"github.com/mantonx/mediavault/internal/ingest/importer"
	"github.com/mantonx/mediavault/internal/ingest/localimport"
	"github.com/mantonx/mediavault/internal/ingest/postprocess"
	"github.com/mantonx/mediavault/internal/ingest/queue"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/session"
	"github.com/mantonx/mediavault/internal/ingest/transcode"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/mantonx/mediavault/internal/taskrunner"
)

func main() {
	configPath := os.Getenv("MEDIAVAULT_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./mediavault.yaml"); err == nil {
			configPath = "./mediavault.yaml"
		}
	}
	if err := config.Load(configPath); err != nil {
		log.Printf("warning: failed to load configuration from %s: %v", configPath, err)
	}
	cfg := config.Get()

	jsonLogs := cfg.Logging.Format == "json"
	lg := logger.New(jsonLogs)

	roots := archive.Roots{
		Originals:  cfg.Archive.OriginalsDir,
		Playback:   cfg.Archive.PlaybackDir,
		Thumbnails: cfg.Archive.ThumbnailsDir,
		Temp:       cfg.Archive.TempDir,
		Import:     cfg.Archive.ImportDir,
	}
	if err := roots.EnsureAll(); err != nil {
		log.Fatalf("archive: %v", err)
	}

	db, err := database.Open(cfg, lg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	mediaRepo := repository.NewMediaRepository(db)
	mediaItemRepo := repository.NewMediaItemRepository(db)
	exifRepo := repository.NewExifRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	selectionRepo := repository.NewSelectionRepository(db)
	taskRecordRepo := repository.NewTaskRecordRepository(db)

	an := analyzer.New(cfg.Transcode.FFprobePath, lg)
	checker := dedup.NewChecker(mediaRepo)
	refresher := dedup.NewRefresher(mediaRepo, mediaItemRepo, playbackRepo, exifRepo, an, roots, lg)

	transcoder := transcode.NewFFmpegTranscoder(cfg.Transcode.FFmpegPath, cfg.Transcode.FFprobePath)
	transcodeWorker := transcode.NewWorker(mediaRepo, playbackRepo, transcoder, roots, lg)

	runner := taskrunner.NewInProcess(clock.Real, lg)

	thumbs := postprocess.NewThumbnailWorker(mediaRepo, playbackRepo, roots, float32(cfg.Thumbnails.JPEGQuality), lg)
	retryScheduler := postprocess.NewScheduler(taskRecordRepo, thumbs, runner, clock.Real, lg)
	runner.RegisterHandler(postprocess.TaskName, retryScheduler.Handler)

	preparer := postprocess.NewPreparer(mediaRepo, playbackRepo, thumbs, transcodeWorker, retryScheduler, roots, lg)

	imp := importer.New(mediaRepo, mediaItemRepo, exifRepo, an, checker, refresher, preparer, roots, lg)
	q := queue.New(selectionRepo, lg)
	sessionSvc := session.NewService(sessionRepo, clock.Real, lg)

	useCase := localimport.New(
		sessionRepo, selectionRepo, mediaRepo, taskRecordRepo, sessionSvc,
		q, imp, runner, roots.Temp, uint64(cfg.Scanner.MinFreeDiskBytes/(1024*1024)), lg,
	)

	transcodeScanner := transcode.NewScanner(mediaRepo, playbackRepo, roots, lg)

	srv := api.NewServer(db, sessionRepo)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runBackgroundSweep(ctx, backgroundSweep{
		useCase:          useCase,
		transcodeScanner: transcodeScanner,
		preparer:         preparer,
		playback:         playbackRepo,
		importDir:        cfg.Archive.ImportDir,
		originalsDir:     cfg.Archive.OriginalsDir,
		retryScheduler:   retryScheduler,
		log:              lg,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		lg.Event("mediavaultd.shutdown.begin")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			lg.Warn("mediavaultd.shutdown.http_failed", logger.F("error", err.Error()))
		}
		cancel()
	}()

	lg.Event("mediavaultd.start", logger.F("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server: %v", err)
	}

	<-ctx.Done()
	lg.Event("mediavaultd.shutdown.complete")
}
