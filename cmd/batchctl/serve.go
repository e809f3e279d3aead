package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	batchgen "github.com/austencloud/tka-desktop-sub001"
	httpAdapter "github.com/austencloud/tka-desktop-sub001/internal/adapters/http"
	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/file"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/redis"
	"github.com/austencloud/tka-desktop-sub001/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the batch API server",
	Long: `Starts the batch pipeline in server mode, exposing a JSON API for
starting and managing batches plus a Prometheus /metrics endpoint.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		redisAddr, _ := cmd.Flags().GetString("redis")
		debug, _ := cmd.Flags().GetBool("debug")

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger := logging.New(level)

		reg := prometheus.NewRegistry()
		opts := []batchgen.Option{
			batchgen.WithLogger(logger),
			batchgen.WithMetrics(observability.NewMetrics(reg)),
		}
		switch {
		case redisAddr != "":
			opts = append(opts, batchgen.WithSessionStore(redis.New(redisAddr, "", 0)))
		case dataDir != "":
			opts = append(opts,
				batchgen.WithSessionStore(file.NewSessionStore(filepath.Join(dataDir, "sessions"))),
				batchgen.WithDocumentStore(file.NewDocumentStore(filepath.Join(dataDir, "document.json"))),
			)
		}

		orch, err := batchgen.New(opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing pipeline: %v\n", err)
			os.Exit(1)
		}
		defer orch.Close()

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: httpAdapter.NewHandler(orch, reg),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting batch server", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
			}
		}
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}
