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

// Command docent ingests documents and answers questions about them.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/docent"
	"github.com/poiesic/docent/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docent",
		Usage: "Document question answering over a semantic index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"DOCENT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "File with secrets in KEY=value form",
				Value: config.DefaultEnvFile,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest documents (txt, md, pdf, docx, html)",
				ArgsUsage: "<file>...",
				Action:    ingestCommand,
				Flags:     []cli.Flag{ownerFlag()},
			},
			{
				Name:   "chat",
				Usage:  "Ask a question; the answer is written as server-sent events",
				Action: chatCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "Conversation id to continue; a new conversation is started if empty",
					},
					&cli.StringFlag{
						Name:     "message",
						Aliases:  []string{"m"},
						Usage:    "Question to ask",
						Required: true,
					},
				},
			},
			{
				Name:   "history",
				Usage:  "List conversations, or the messages of one conversation",
				Action: historyCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "Conversation id",
					},
				},
			},
			{
				Name:   "files",
				Usage:  "List ingested files",
				Action: filesCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only list files in this status (uploaded, processing, processed, failed, duplicate)",
					},
				},
			},
			{
				Name:   "audit",
				Usage:  "List audit entries, newest first",
				Action: auditCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries (0 for all)",
						Value: 20,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Show the passages retrieved for a query",
				Action: searchCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query text",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of passages (0 for the configured default)",
					},
				},
			},
			{
				Name:   "retry",
				Usage:  "Re-ingest a failed file from the upload archive",
				Action: retryCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{
						Name:     "file",
						Usage:    "File id",
						Required: true,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every vector of the embedded index with the configured embedder",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of vectors to embed in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N vectors",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "worker",
				Usage:  "Run maintenance jobs and serve Prometheus metrics",
				Action: workerCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Listen address for /metrics (overrides the configuration)",
					},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration with secrets redacted",
				Action: configCommand,
			},
		},
	}
}

func ownerFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "owner",
		Aliases:  []string{"o"},
		Usage:    "Owner (user) id",
		EnvVars:  []string{"DOCENT_OWNER"},
		Required: true,
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// withSystem opens the configured system for the duration of fn.
func withSystem(c *cli.Context, fn func(ctx context.Context, sys *docent.System) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	sys, err := docent.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open docent: %w", err)
	}
	defer sys.Close()
	return fn(ctx, sys)
}
