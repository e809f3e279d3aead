package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/file"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/memory"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/redis"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
	"github.com/austencloud/tka-desktop-sub001/pkg/session"
)

// SweepOptions configures the sweep command.
type SweepOptions struct {
	DataDir   string
	RedisAddr string
	MaxAge    time.Duration
	DryRun    bool
}

// Sweep removes scratch sessions older than MaxAge from a persistent
// store. Crash-orphaned sessions are the only thing a store should hold
// between runs, so everything past the cutoff goes.
func Sweep(ctx context.Context, opts SweepOptions) error {
	var store ports.SessionStore
	switch {
	case opts.RedisAddr != "" && opts.DataDir != "":
		return fmt.Errorf("--redis and --data-dir cannot be used together")
	case opts.RedisAddr != "":
		store = redis.New(opts.RedisAddr, "", 0)
	case opts.DataDir != "":
		store = file.NewSessionStore(filepath.Join(opts.DataDir, "sessions"))
	default:
		return fmt.Errorf("sweep needs a persistent store: pass --data-dir or --redis")
	}

	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}

	if opts.DryRun {
		sessions, err := store.List(ctx)
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-opts.MaxAge)
		stale := 0
		for _, s := range sessions {
			if s.CreatedAt.Before(cutoff) {
				stale++
				fmt.Fprintf(os.Stdout, "would remove %s (created %s)\n", s.ID, s.CreatedAt.Format(time.RFC3339))
			}
		}
		fmt.Fprintf(os.Stdout, "%d stale of %d stored sessions\n", stale, len(sessions))
		return nil
	}

	mgr := session.NewManager(store, memory.NewDocumentStore(), session.WithLogger(logging.New(slog.LevelInfo)))
	swept, err := mgr.SweepOrphans(ctx, opts.MaxAge)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "removed %d orphaned sessions\n", swept)
	return nil
}
