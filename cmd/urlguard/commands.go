package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"urlguard/internal/analysis"
	"urlguard/internal/report"
	"urlguard/internal/updater"
)

var errScansFailed = errors.New("some URLs could not be scanned")

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func writeResult(w io.Writer, r *analysis.Report, verbose bool) error {
	if jsonOutput {
		return report.WriteJSON(w, r)
	}
	return report.WriteReport(w, r, verbose)
}

func scanCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "scan <url>...",
		Short: "Extract features and classify one or more URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			failed := false
			for _, raw := range args {
				r, err := state.scanner.Scan(ctx, raw)
				if err != nil {
					fmt.Fprintf(os.Stderr, "[-] %s: %v\n", raw, err)
					failed = true
					continue
				}
				if err := writeResult(cmd.OutOrStdout(), r, !quiet); err != nil {
					return err
				}
			}
			if failed {
				return errScansFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the verdict line")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		inputFile  string
		outputFile string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scan every URL in a file, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(inputFile)
			if err != nil {
				return err
			}
			defer in.Close()
			targets, err := readTargets(in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			if workers <= 0 {
				workers = state.cfg.Batch.Workers
			}
			limiter := newLimiter(state.cfg.Batch.RatePerSecond, state.cfg.Batch.Burst)

			ctx, cancel := signalContext()
			defer cancel()
			return runBatch(ctx, state.scanner, targets, out, workers, limiter)
		},
	}
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "Input file, - for stdin")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write results here instead of stdout")
	cmd.Flags().IntVarP(&workers, "threads", "t", 0, "Concurrent scans (default from config)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type urlScanner interface {
	Scan(ctx context.Context, raw string) (*analysis.Report, error)
}

// runBatch scans targets on a bounded pool. Per-URL failures are logged and
// counted; only cancellation stops the batch early.
func runBatch(ctx context.Context, s urlScanner, targets []string, out io.Writer, workers int, limiter *rate.Limiter) error {
	var (
		mu     sync.Mutex
		failed atomic.Int64
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, raw := range targets {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			r, err := s.Scan(gctx, raw)
			if err != nil {
				log.Warnf("Scan failed for %s: %v", raw, err)
				failed.Add(1)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			return writeResult(out, r, false)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Infof("Scanned %d URLs in %v (%d failed).", len(targets), time.Since(start).Round(time.Millisecond), failed.Load())
	if failed.Load() > 0 {
		return errScansFailed
	}
	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	return f, nil
}

// readTargets returns the non-empty, non-comment lines of r.
func readTargets(r io.Reader) ([]string, error) {
	var targets []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	return targets, sc.Err()
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func updateCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the configured phishing feeds into the local block-list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if err := runUpdate(ctx, cmd.OutOrStdout()); err != nil || !watch {
				return err
			}

			interval := time.Duration(state.cfg.App.UpdateInterval) * time.Hour
			if interval <= 0 {
				return fmt.Errorf("app.update_interval_hours must be positive for --watch")
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			log.Printf("Next update in %v.", interval)
			for {
				select {
				case <-ctx.Done():
					log.Println("Received shutdown signal. Stopping updater.")
					return nil
				case <-ticker.C:
					if err := runUpdate(ctx, cmd.OutOrStdout()); err != nil {
						log.Errorf("Update failed: %v", err)
					}
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and update every app.update_interval_hours")
	return cmd
}

func runUpdate(ctx context.Context, w io.Writer) error {
	log.Println("Checking for updates...")
	results := updater.Run(ctx, state.db, state.cfg.Blocking.Sources)
	if err := state.index.Reload(state.db); err != nil {
		return fmt.Errorf("reload block-list: %w", err)
	}
	report.WriteUpdate(w, results, state.index.Len())
	return nil
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			scans, err := state.db.RecentScans(limit)
			if err != nil {
				return err
			}
			return report.WriteHistory(cmd.OutOrStdout(), scans)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of scans to show")
	return cmd
}
