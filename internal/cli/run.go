// Package cli contains the command logic behind batchctl, kept out of the
// cobra wiring so it can be tested directly.
package cli

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"

	batchgen "github.com/austencloud/tka-desktop-sub001"
	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/internal/render"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/file"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/redis"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	ParamsPath  string
	Count       int
	OutDir      string
	DataDir     string
	RedisAddr   string
	Cooperative bool
	Review      bool
	Plain       bool
	Debug       bool
}

// LoadParams reads generation parameters from a YAML file, falling back to
// the defaults when path is empty.
func LoadParams(path string) (domain.GenerationParams, error) {
	params := domain.DefaultParams()
	if path == "" {
		return params, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read params file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("failed to parse params file: %w", err)
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// Run executes one batch end to end and writes the rendered artifacts as
// PNG files into OutDir.
func Run(ctx context.Context, opts RunOptions) error {
	params, err := LoadParams(opts.ParamsPath)
	if err != nil {
		return err
	}
	if opts.Count <= 0 {
		opts.Count = 1
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := logging.New(level)

	orchOpts, err := storageOptions(opts)
	if err != nil {
		return err
	}
	orchOpts = append(orchOpts, batchgen.WithLogger(logger))
	if opts.Cooperative {
		orchOpts = append(orchOpts, batchgen.WithDispatchMode(render.Cooperative))
	}
	if opts.Review {
		orchOpts = append(orchOpts, batchgen.WithReviewRender(1600, 1200))
	}

	var retried int
	orchOpts = append(orchOpts, batchgen.WithHooks(domain.BatchEvents{
		OnBatchProgress: func(ctx context.Context, batchID string, done, total int) {
			fmt.Fprintf(os.Stderr, "\r%d/%d settled", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		},
		OnJobRetried: func(ctx context.Context, batchID, jobID string, attempt int) {
			retried++
		},
	}))

	orch, err := batchgen.New(orchOpts...)
	if err != nil {
		return err
	}
	defer orch.Close()

	start := time.Now()
	batchID, err := orch.StartBatch(ctx, params, opts.Count)
	if err != nil {
		return err
	}
	if err := orch.Wait(ctx, batchID); err != nil {
		return err
	}

	artifacts, err := orch.Artifacts(batchID)
	if err != nil {
		return err
	}
	if opts.OutDir != "" {
		if err := writeArtifacts(opts.OutDir, artifacts); err != nil {
			return err
		}
	}
	return printReport(os.Stdout, opts.Plain, reportData{
		BatchID:   batchID,
		Params:    params,
		Artifacts: artifacts,
		Retried:   retried,
		Elapsed:   time.Since(start),
		OutDir:    opts.OutDir,
	})
}

func storageOptions(opts RunOptions) ([]batchgen.Option, error) {
	if opts.RedisAddr != "" && opts.DataDir != "" {
		return nil, fmt.Errorf("--redis and --data-dir cannot be used together")
	}
	switch {
	case opts.RedisAddr != "":
		return []batchgen.Option{
			batchgen.WithSessionStore(redis.New(opts.RedisAddr, "", 0)),
		}, nil
	case opts.DataDir != "":
		return []batchgen.Option{
			batchgen.WithSessionStore(file.NewSessionStore(filepath.Join(opts.DataDir, "sessions"))),
			batchgen.WithDocumentStore(file.NewDocumentStore(filepath.Join(opts.DataDir, "document.json"))),
		}, nil
	default:
		return nil, nil
	}
}

// writeArtifacts saves every preview as a PNG named by slot order and word.
func writeArtifacts(dir string, artifacts []*domain.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for i, a := range artifacts {
		if a.Preview == nil {
			continue
		}
		name := fmt.Sprintf("%03d", i+1)
		if a.Word != "" {
			name += "_" + sanitize(a.Word)
		}
		if a.Fallback {
			name += "_fallback"
		}
		path := filepath.Join(dir, name+".png")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := png.Encode(f, a.Preview); err != nil {
			f.Close()
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		a.RenderPath = path
	}
	return nil
}

func sanitize(word string) string {
	var b strings.Builder
	for _, r := range word {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() > 24 {
		return b.String()[:24]
	}
	return b.String()
}

type reportData struct {
	BatchID   string
	Params    domain.GenerationParams
	Artifacts []*domain.Artifact
	Retried   int
	Elapsed   time.Duration
	OutDir    string
}

// printReport renders a markdown batch summary, through glamour unless
// plain output was requested.
func printReport(w *os.File, plain bool, data reportData) error {
	var md strings.Builder
	fmt.Fprintf(&md, "# Batch %s\n\n", data.BatchID)
	fmt.Fprintf(&md, "- **Jobs**: %d\n", len(data.Artifacts))
	fallbacks := 0
	for _, a := range data.Artifacts {
		if a.Fallback {
			fallbacks++
		}
	}
	fmt.Fprintf(&md, "- **Fallbacks**: %d\n", fallbacks)
	fmt.Fprintf(&md, "- **Retries**: %d\n", data.Retried)
	fmt.Fprintf(&md, "- **Elapsed**: %s\n", data.Elapsed.Round(time.Millisecond))
	if data.OutDir != "" {
		fmt.Fprintf(&md, "- **Output**: %s\n", data.OutDir)
	}
	md.WriteString("\n| # | Word | Length | Outcome |\n|---|------|--------|---------|\n")
	for i, a := range data.Artifacts {
		outcome := "ok"
		if a.Fallback {
			outcome = "fallback"
		}
		fmt.Fprintf(&md, "| %d | %s | %d | %s |\n", i+1, a.Word, len(domain.ContentBeats(a.Beats)), outcome)
	}

	if plain {
		_, err := fmt.Fprint(w, md.String())
		return err
	}
	out, err := glamour.Render(md.String(), "auto")
	if err != nil {
		_, werr := fmt.Fprint(w, md.String())
		return werr
	}
	_, err = fmt.Fprint(w, out)
	return err
}
