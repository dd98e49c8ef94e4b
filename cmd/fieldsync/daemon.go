package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cometa-fiber/fieldsync/internal/blob"
	"github.com/cometa-fiber/fieldsync/internal/daemon"
	"github.com/cometa-fiber/fieldsync/internal/dashboard"
	"github.com/cometa-fiber/fieldsync/internal/engine"
)

var (
	daemonStagingDir  string
	daemonStagingProj string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync process",
	Long: `Run the sync daemon: probe connectivity, push queued changes when
the backend is reachable, purge old queue items, and optionally ingest
photos dropped into a staging directory. Serves a live status dashboard
when configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		session := a.session()

		logSink := daemonLogSink(a)

		var blobs engine.BlobStore
		if a.cfg.Blob.Endpoint != "" {
			bs, err := blob.New(ctx, blob.Config{
				Endpoint:      a.cfg.Blob.Endpoint,
				AccessKey:     a.cfg.Blob.AccessKey,
				SecretKey:     a.cfg.Blob.SecretKey,
				Bucket:        a.cfg.Blob.Bucket,
				UseSSL:        a.cfg.Blob.UseSSL,
				PublicBaseURL: a.cfg.Blob.PublicBaseURL,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: blob store unavailable: %v\n", err)
				os.Exit(1)
			}
			blobs = bs
		} else {
			blobs = unavailableBlobs{err: fmt.Errorf("blob store not configured")}
		}
		eng := engine.New(a.queue, a.store, a.remote, blobs)

		var board *dashboard.Handler
		if addr := a.cfg.Daemon.DashboardAddr; addr != "" {
			server := dashboard.NewServer(addr, log.New(logSink, "[dashboard] ", log.LstdFlags))
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer server.Stop()
			board = dashboard.NewHandler(server, a.queue, log.New(logSink, "[dashboard] ", log.LstdFlags))
			fmt.Printf("Dashboard: http://%s\n", server.GetAddr())
		}

		dcfg := daemon.Config{
			ProbeInterval:    time.Duration(a.cfg.Daemon.ProbeIntervalSecs) * time.Second,
			PurgeInterval:    time.Duration(a.cfg.Daemon.PurgeIntervalSecs) * time.Second,
			StagingDir:       daemonStagingDir,
			StagingProjectID: daemonStagingProj,
			StagingUserID:    session.UserID,
		}
		if dcfg.StagingDir == "" {
			dcfg.StagingDir = a.cfg.StagingDir
		}

		d := daemon.New(dcfg, a.bus, a.monitor, a.remote, eng, a.queue, a.svc, board)
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Sync daemon running. Ctrl-C to stop.")
		<-ctx.Done()
		d.Stop()
	},
}

// daemonLogSink routes daemon logging through a rotating file when one is
// configured, falling back to stderr.
func daemonLogSink(a *app) io.Writer {
	if a.cfg.Log.File == "" {
		return os.Stderr
	}
	sink := &lumberjack.Logger{
		Filename:   a.cfg.Log.File,
		MaxSize:    a.cfg.Log.MaxSizeMB,
		MaxBackups: a.cfg.Log.MaxBackups,
		MaxAge:     a.cfg.Log.MaxAgeDays,
	}
	log.SetOutput(sink)
	return sink
}

func init() {
	daemonCmd.Flags().StringVar(&daemonStagingDir, "staging-dir", "", "directory watched for dropped photos")
	daemonCmd.Flags().StringVar(&daemonStagingProj, "staging-project", "", "project attributed to ingested photos")
}
