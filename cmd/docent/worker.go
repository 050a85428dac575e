// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/docent"
	"github.com/poiesic/docent/metrics"
	"github.com/poiesic/docent/schedule"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

// workerCommand runs the stale ingestion sweeper on its schedule and serves
// metrics until interrupted.
func workerCommand(c *cli.Context) error {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withSystem(c, func(_ context.Context, sys *docent.System) error {
		return runWorker(ctx, c, sys)
	})
}

func runWorker(ctx context.Context, c *cli.Context, sys *docent.System) error {
	logger := slog.Default().With("component", "worker")
	cfg := sys.Config()

	sweeper, err := sys.NewSweeper()
	if err != nil {
		return err
	}

	// Recover anything left over from a previous crash before scheduling.
	if n, err := sweeper.Sweep(ctx); err != nil {
		logger.Warn("initial sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("recovered stale ingestions", "count", n)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(sweeper, cfg.Worker.SweepSchedule); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", sweeper.Name(), err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	addr := cfg.Worker.MetricsAddr
	if flag := c.String("metrics-addr"); flag != "" {
		addr = flag
	}
	if addr == "" {
		logger.Info("worker started", "schedule", cfg.Worker.SweepSchedule)
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	logger.Info("worker started", "schedule", cfg.Worker.SweepSchedule, "metrics", addr)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("worker shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
