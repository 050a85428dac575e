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
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/poiesic/docent"
	"github.com/poiesic/docent/chat"
	"github.com/poiesic/docent/config"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/ingestion"
	"github.com/poiesic/docent/reembed"
	"github.com/poiesic/docent/search"
	"github.com/urfave/cli/v2"
)

const timeLayout = time.RFC3339

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	owner := c.String("owner")
	uploads := make([]ingestion.Upload, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		uploads = append(uploads, ingestion.Upload{
			Filename: filepath.Base(path),
			Content:  content,
			OwnerId:  owner,
		})
	}

	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		pipeline, err := sys.NewPipeline()
		if err != nil {
			return err
		}
		defer pipeline.Release()

		failed := 0
		for i, out := range pipeline.IngestAll(ctx, uploads) {
			name := uploads[i].Filename
			if out.Err != nil {
				failed++
				fmt.Fprintf(c.App.Writer, "%s\tfailed\t%v\n", name, out.Err)
				continue
			}
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%d chunks\n", name, out.Result.Status, out.Result.FileId, out.Result.Chunks)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(uploads))
		}
		return nil
	})
}

func chatCommand(c *cli.Context) error {
	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		streamer, err := sys.NewStreamer()
		if err != nil {
			return err
		}
		events, errc, err := streamer.Stream(ctx, c.String("conversation"), c.String("message"), c.String("owner"))
		if err != nil {
			return err
		}
		return chat.WriteSSE(c.App.Writer, events, errc)
	})
}

func historyCommand(c *cli.Context) error {
	owner := c.String("owner")
	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		defer w.Flush()

		if id := c.String("conversation"); id != "" {
			streamer, err := sys.NewStreamer()
			if err != nil {
				return err
			}
			messages, err := streamer.History(ctx, id, owner)
			if err != nil {
				return err
			}
			for _, m := range messages {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.CreatedAt.Format(timeLayout), m.Role, m.Content)
			}
			return nil
		}

		conversations, err := sys.Ledger().ListConversations(ctx, owner)
		if err != nil {
			return err
		}
		for _, conv := range conversations {
			fmt.Fprintf(w, "%s\t%s\n", conv.Id, conv.CreatedAt.Format(timeLayout))
		}
		return nil
	})
}

func filesCommand(c *cli.Context) error {
	status := core.FileStatus(c.String("status"))
	if status != "" {
		if err := core.ValidateFileStatus(status); err != nil {
			return err
		}
	}
	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		files, err := sys.Ledger().ListFiles(ctx, c.String("owner"))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		defer w.Flush()
		for _, f := range files {
			if status != "" && f.Status != status {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Id, f.Filename, f.Status, f.UpdatedAt.Format(timeLayout), f.Error)
		}
		return nil
	})
}

func auditCommand(c *cli.Context) error {
	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		entries, err := sys.Ledger().ListAudit(ctx, c.String("owner"), c.Int("limit"))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		defer w.Flush()
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%v\n", e.CreatedAt.Format(timeLayout), e.Action, e.Metadata)
		}
		return nil
	})
}

// printMonitor reports passages dropped by the score threshold.
type printMonitor struct {
	c *cli.Context
}

var _ search.RetrievalMonitor = (*printMonitor)(nil)

func (m *printMonitor) Start(_, _ string, _ int) {}

func (m *printMonitor) AfterIndexQuery(passages []core.Passage) {
	fmt.Fprintf(m.c.App.ErrWriter, "index returned %d passages\n", len(passages))
}

func (m *printMonitor) Dropped(p core.Passage) {
	fmt.Fprintf(m.c.App.ErrWriter, "dropped %s#%s (score %.4f)\n", p.Metadata[core.MetaSource], p.Metadata[core.MetaChunkIndex], p.Score)
}

func (m *printMonitor) Finish(_ []core.Passage) {}

func searchCommand(c *cli.Context) error {
	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		retriever, err := sys.NewRetriever()
		if err != nil {
			return err
		}
		passages, err := retriever.RetrieveWithMonitor(ctx, c.String("query"), c.String("owner"), c.Int("k"), &printMonitor{c: c})
		if err != nil {
			return err
		}
		for i, p := range passages {
			fmt.Fprintf(c.App.Writer, "[%d] %s#%s score=%.4f\n%s\n\n", i+1, p.Metadata[core.MetaSource], p.Metadata[core.MetaChunkIndex], p.Score, p.Text)
		}
		return nil
	})
}

func retryCommand(c *cli.Context) error {
	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		pipeline, err := sys.NewPipeline()
		if err != nil {
			return err
		}
		defer pipeline.Release()

		res, err := pipeline.Retry(ctx, c.String("file"), c.String("owner"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%d chunks\n", res.FileId, res.Status, res.Chunks)
		return nil
	})
}

func reembedCommand(c *cli.Context) error {
	rc := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	return withSystem(c, func(ctx context.Context, sys *docent.System) error {
		r, err := sys.NewReembedder(rc, c.App.ErrWriter)
		if err != nil {
			return err
		}
		n, err := r.Run(ctx)
		if err != nil {
			return fmt.Errorf("reembedding failed after %d vectors: %w", n, err)
		}
		fmt.Fprintf(c.App.Writer, "Re-embedded %d vectors\n", n)
		return nil
	})
}

func configCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return config.Write(c.App.Writer, cfg.Redacted())
}
