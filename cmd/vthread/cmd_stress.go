// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"code.hybscloud.com/vthread"
	"code.hybscloud.com/vthread/vsync"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// workload drives about threads virtual threads for iterations rounds on s
// and returns how many it started.
type workload func(ctx context.Context, s *vthread.Scheduler, threads, iterations int) (int, error)

type stressFlags struct {
	threads    int
	iterations int
}

func newStressCmd(a *app) *cobra.Command {
	f := &stressFlags{}
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run scheduler stress workloads",
	}
	cmd.PersistentFlags().IntVar(&f.threads, "threads", 0, "Number of virtual threads (0 uses config)")
	cmd.PersistentFlags().IntVar(&f.iterations, "iterations", 0, "Iterations per thread (0 uses config)")

	cmd.AddCommand(
		newWorkloadCmd(a, f, "yield", "Threads that yield their carrier repeatedly", yieldALot),
		newWorkloadCmd(a, f, "pingpong", "Pairs of threads exchanging values", pingPong),
		newWorkloadCmd(a, f, "park-chain", "A token passed around a ring of parked threads", parkChain),
		newWorkloadCmd(a, f, "all", "All workloads concurrently on one scheduler", all),
	)
	return cmd
}

func newWorkloadCmd(a *app, f *stressFlags, name, short string, w workload) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threads, iterations := a.cfg.Stress.Threads, a.cfg.Stress.Iterations
			if f.threads > 0 {
				threads = f.threads
			}
			if f.iterations > 0 {
				iterations = f.iterations
			}

			s := a.newScheduler()
			start := time.Now()
			started, err := w(cmd.Context(), s, threads, iterations)
			elapsed := time.Since(start)
			if cerr := s.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			st := s.Stats()
			a.log.Info("workload finished",
				zap.String("workload", name),
				zap.Int("threads", started),
				zap.Int("iterations", iterations),
				zap.Duration("elapsed", elapsed),
				zap.Uint64("tasks", st.Completed))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d threads x %d iterations on %d carriers in %s (%d tasks)\n",
				name, started, iterations, st.Parallelism, elapsed.Round(time.Microsecond), st.Completed)
			return nil
		},
	}
}

func joinAll(ctx context.Context, vts []*vthread.VirtualThread) error {
	var errs []error
	for _, vt := range vts {
		if err := vt.Join(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func yieldALot(ctx context.Context, s *vthread.Scheduler, threads, iterations int) (int, error) {
	f := vthread.NewFactory(s, "yield-")
	vts := make([]*vthread.VirtualThread, 0, threads)
	for range threads {
		vt, err := f.Start(func(ctx context.Context) error {
			for range iterations {
				if err := vthread.Gosched(ctx); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return len(vts), err
		}
		vts = append(vts, vt)
	}
	return len(vts), joinAll(ctx, vts)
}

// pingPong runs threads/2 pairs, at least one.
func pingPong(ctx context.Context, s *vthread.Scheduler, threads, iterations int) (int, error) {
	f := vthread.NewFactory(s, "pingpong-")
	var vts []*vthread.VirtualThread
	for range max(threads/2, 1) {
		ping, pong := vsync.NewExchanger[int](), vsync.NewExchanger[int]()
		a, err := f.Start(func(ctx context.Context) error {
			for i := range iterations {
				if err := ping.Transfer(ctx, i); err != nil {
					return err
				}
				v, err := pong.Take(ctx)
				if err != nil {
					return err
				}
				if v != i+1 {
					return fmt.Errorf("pong: got %d, want %d", v, i+1)
				}
			}
			return nil
		})
		if err != nil {
			return len(vts), err
		}
		b, err := f.Start(func(ctx context.Context) error {
			for range iterations {
				v, err := ping.Take(ctx)
				if err != nil {
					return err
				}
				if err := pong.Transfer(ctx, v+1); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return len(vts) + 1, err
		}
		vts = append(vts, a, b)
	}
	return len(vts), joinAll(ctx, vts)
}

// parkChain passes a token around a ring of threads. Each thread parks
// until it holds the token, then hands it to its successor.
func parkChain(ctx context.Context, s *vthread.Scheduler, threads, iterations int) (int, error) {
	const finished = -1
	var (
		turn atomic.Int64
		hops atomic.Int64
	)
	total := int64(threads) * int64(iterations)
	f := vthread.NewFactory(s, "chain-")
	vts := make([]*vthread.VirtualThread, threads)
	for i := range vts {
		me := int64(i)
		vts[i] = f.New(func(ctx context.Context) error {
			for {
				for t := turn.Load(); t != me && t != finished; t = turn.Load() {
					if err := vthread.Park(ctx); err != nil {
						return err
					}
				}
				if turn.Load() == finished {
					return nil
				}
				if hops.Add(1) >= total {
					turn.Store(finished)
					for _, vt := range vts {
						vt.Unpark()
					}
					return nil
				}
				next := (me + 1) % int64(len(vts))
				turn.Store(next)
				vts[next].Unpark()
			}
		})
	}
	for i, vt := range vts {
		if err := vt.Start(); err != nil {
			return i, err
		}
	}
	return len(vts), joinAll(ctx, vts)
}

func all(ctx context.Context, s *vthread.Scheduler, threads, iterations int) (int, error) {
	var started atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range []workload{yieldALot, pingPong, parkChain} {
		g.Go(func() error {
			n, err := w(gctx, s, threads, iterations)
			started.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	return int(started.Load()), err
}
