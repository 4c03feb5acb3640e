package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/ceval/assets"
	"github.com/wippyai/ceval/protocol"
	"github.com/wippyai/ceval/worker"
)

const stopGrace = 2 * time.Second

type analyzeOptions struct {
	fen     string
	moves   string
	variant string
	depth   int
}

type bestMove struct {
	best   string
	ponder string
}

func newAnalyzeCommand(a *app) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one position and print the best move",
		Long: `Analyze a position until the search limit is reached, printing search
progress as it arrives. An infinite search runs until interrupted.

Example:
  ceval analyze --moves "e2e4 e7e5 g1f3" --depth 22
  ceval analyze --fen "8/8/8/8/8/8/8/K6k w - - 0 1" --search-time 10s
  ceval analyze --variant atomic --engine native --engine-path fairy-stockfish`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.fen, "fen", "", "initial position (default: start position)")
	cmd.Flags().StringVar(&opts.moves, "moves", "", "space separated UCI moves from the initial position")
	cmd.Flags().StringVar(&opts.variant, "variant", "", "chess variant key")
	cmd.Flags().IntVar(&opts.depth, "depth", 0, "search depth (overrides --search-time)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, opts *analyzeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var hooks progressHooks
	if term.IsTerminal(int(os.Stderr.Fd())) {
		hooks.binary = printProgress(cmd.ErrOrStderr(), "engine")
		hooks.weights = printProgress(cmd.ErrOrStderr(), "weights")
	}

	reg, err := a.registry(ctx, hooks)
	if err != nil {
		return err
	}
	info, err := reg.Select(a.cfg.Engine, opts.variant)
	if err != nil {
		return err
	}

	work := a.settings(info).Work(opts.fen, strings.Fields(opts.moves), opts.variant)
	if opts.depth > 0 {
		work.Limits = protocol.Limits{Depth: opts.depth}
	}

	done := make(chan bestMove, 1)
	failed := make(chan error, 1)
	w, err := info.NewWorker(worker.Options{
		Logger: a.logger,
		OnFailure: func(err error) {
			failed <- err
		},
		OnEval: func(_ *protocol.Work, ev protocol.Eval) {
			fmt.Fprintln(out, formatEval(ev))
		},
		OnBestMove: func(_ *protocol.Work, best, ponder string) {
			select {
			case done <- bestMove{best: best, ponder: ponder}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		if err := w.Close(closeCtx); err != nil {
			a.logger.Warn("close engine", zap.Error(err))
		}
	}()

	a.logger.Info("analyzing",
		zap.String("engine", info.ID),
		zap.String("limits", work.Limits.String()),
		zap.Int("threads", work.Threads),
		zap.Int("hash", work.HashMB))
	w.Start(work)

	var bm bestMove
	select {
	case bm = <-done:
	case err := <-failed:
		return err
	case <-ctx.Done():
		w.Stop()
		select {
		case bm = <-done:
		case <-time.After(stopGrace):
			return ctx.Err()
		}
	}

	line := "bestmove " + bm.best
	if bm.ponder != "" {
		line += " ponder " + bm.ponder
	}
	fmt.Fprintf(out, "%s (%s)\n", line, w.EngineName())
	return nil
}

// printProgress renders a download on a single terminal line.
func printProgress(w io.Writer, label string) assets.ProgressFunc {
	return func(p assets.Progress) {
		if p.Done {
			fmt.Fprintf(w, "\r%s %s done\033[K\n", label, formatBytes(p.Loaded))
			return
		}
		if p.Total > 0 {
			fmt.Fprintf(w, "\r%s %s / %s\033[K", label, formatBytes(p.Loaded), formatBytes(p.Total))
			return
		}
		fmt.Fprintf(w, "\r%s %s\033[K", label, formatBytes(p.Loaded))
	}
}
