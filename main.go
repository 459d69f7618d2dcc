// Package main provides voicememod, a voice memo recorder that captures
// system audio, encodes it in real time, and keeps a metadata library
// reconciled against the recordings directory.
//
// Usage:
//
//	voicememod [-config path/to/config.json]
//
// If -config is not specified, the daemon looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/audio"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/cloudsync"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/config"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/encoder"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/eventlog"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/reconcile"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/server"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/session"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/store"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ffmpegPath := util.ResolveTool("ffmpeg", cfg.FFmpegPath())
	ffprobePath := util.ResolveTool("ffprobe", cfg.FFprobePath())
	if ffmpegPath == "" || ffprobePath == "" {
		slog.Error("FFmpeg and ffprobe are required",
			"ffmpeg", cfg.FFmpegPath(), "ffprobe", cfg.FFprobePath())
		os.Exit(1)
	}
	slog.Info("tools resolved", "ffmpeg", ffmpegPath, "ffprobe", ffprobePath)

	recordingsDir := cfg.RecordingsDir()
	if err := util.CheckPathWritable(recordingsDir); err != nil {
		slog.Error("recordings directory not writable", "path", recordingsDir, "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.LibraryPath())
	if err != nil {
		slog.Error("failed to open library", "path", cfg.LibraryPath(), "error", err)
		os.Exit(1)
	}

	prober := encoder.NewProber(ffprobePath)

	// The history log is best effort: a read-only filesystem costs the
	// durable event trail, not the service.
	eventLogPath := eventlog.DefaultLogPath(cfg.Port())
	events, err := eventlog.NewLogger(eventLogPath)
	if err != nil {
		slog.Warn("event log unavailable", "path", eventLogPath, "error", err)
		events = nil
	}

	// Startup reconciliation: the directory is ground truth, the library
	// follows it. A failed pass is logged and the service still comes up.
	cloudCfg := cfg.CloudSnapshot()
	reconciler := reconcile.New(st, recordingsDir, prober, &reconcile.PlaceholderChecker{
		Suffix:        cloudCfg.PlaceholderSuffix,
		StubThreshold: cloudCfg.StubThresholdBytes,
	})
	report, err := reconciler.Run(context.Background())
	if err != nil {
		slog.Error("startup reconciliation failed", "error", err)
	} else if events != nil {
		_ = events.LogReconcile(eventlog.ReconcileDetails{
			Scanned:     report.Scanned,
			Adopted:     report.Adopted,
			Measured:    report.Measured,
			SoftDeleted: report.SoftDeleted,
			CloudOnly:   report.CloudOnly,
		})
	}

	hub := server.NewHub()
	notifier := session.MultiNotifier(hub)
	if events != nil {
		notifier = session.MultiNotifier(hub, eventlog.NewSessionObserver(events))
	}

	var uploader *cloudsync.Uploader
	var onCompleted func(rec store.RecordingRecord)
	if syncCfg := cfg.SyncSnapshot(); syncCfg.IsConfigured() {
		uploader, err = cloudsync.New(syncCfg, events)
		if err != nil {
			slog.Error("failed to start cloud sync", "error", err)
		} else {
			slog.Info("cloud sync enabled", "bucket", syncCfg.Bucket)
			onCompleted = func(rec store.RecordingRecord) {
				uploader.Enqueue(filepath.Join(recordingsDir, rec.FileName))
			}
		}
	}

	openSink := encoder.NewOpener(ffmpegPath)
	sess := session.New(session.Deps{
		Sources: audio.NewFactory(ffmpegPath, cfg.AudioInput()),
		OpenSink: func(path string, codec types.Codec) (session.Sink, error) {
			return openSink(path, codec)
		},
		Probe:       prober,
		Store:       st,
		Dir:         recordingsDir,
		Codec:       cfg.Codec(),
		Notifier:    notifier,
		OnCompleted: onCompleted,
	})

	srv := NewServer(cfg, sess, st, hub, eventLogPath)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	srv.version.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// An in-flight memo is finalized, not thrown away.
	if sess.State().Active() {
		if err := sess.Stop(shutdownCtx); err != nil {
			slog.Error("failed to finalize in-flight recording", "error", err)
		}
	}

	if uploader != nil {
		uploader.Stop()
	}
	if events != nil {
		if err := events.Close(); err != nil {
			slog.Warn("event log close error", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
