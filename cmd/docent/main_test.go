package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/docent/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// writeConfig writes a config using the mock provider and a temporary badger store.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "docent.yaml")
	body := "storage:\n  driver: badger\n  path: " + filepath.Join(dir, "data") + "\n" +
		"index:\n  driver: badger\n" +
		"ai:\n  provider: mock\n" +
		"ingest:\n  chunk_size: 40\n  chunk_overlap: 10\n  workers: 2\n" +
		"worker:\n  metrics_addr: \"\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// run executes the app and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"docent"}, args...))
	return stdout.String(), err
}

func findFlag(cmd *cli.Command, name string) cli.Flag {
	for _, f := range cmd.Flags {
		for _, n := range f.Names() {
			if n == name {
				return f
			}
		}
	}
	return nil
}

func findCommand(app *cli.App, name string) *cli.Command {
	for _, c := range app.Commands {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestNewApp_Flags(t *testing.T) {
	app := newApp()

	t.Run("every command is registered", func(t *testing.T) {
		for _, name := range []string{"ingest", "chat", "history", "files", "audit", "search", "retry", "reembed", "worker", "config"} {
			assert.NotNil(t, findCommand(app, name), name)
		}
	})

	t.Run("chat requires a message", func(t *testing.T) {
		flag, ok := findFlag(findCommand(app, "chat"), "message").(*cli.StringFlag)
		require.True(t, ok)
		assert.True(t, flag.Required)
	})

	t.Run("reembed defaults", func(t *testing.T) {
		cmd := findCommand(app, "reembed")
		batch, ok := findFlag(cmd, "batch-size").(*cli.IntFlag)
		require.True(t, ok)
		assert.Equal(t, 100, batch.Value)
		retries, ok := findFlag(cmd, "max-retries").(*cli.IntFlag)
		require.True(t, ok)
		assert.Equal(t, 3, retries.Value)
	})
}

func TestSetupLogger(t *testing.T) {
	cfg := writeConfig(t)

	t.Run("invalid level", func(t *testing.T) {
		_, err := run(t, "--log-level", "loud", "--config", cfg, "config")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("level is case insensitive", func(t *testing.T) {
		_, err := run(t, "--log-level", "DEBUG", "--config", cfg, "config")
		require.NoError(t, err)
	})
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "config")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: mock")
	assert.Contains(t, out, "chunk_size: 40")
}

func TestConfigCommand_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: postgres\n"), 0o600))

	_, err := run(t, "--config", path, "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestIngestAndQuery(t *testing.T) {
	cfg := writeConfig(t)
	doc := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Notes\n\nBadger keeps the ledger. Qdrant keeps the vectors."), 0o600))

	out, err := run(t, "--config", cfg, "ingest", "--owner", "alice", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.md\tingested")

	t.Run("second upload is a duplicate", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "ingest", "--owner", "alice", doc)
		require.NoError(t, err)
		assert.Contains(t, out, "notes.md\tduplicate")
	})

	t.Run("files lists the record", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "files", "--owner", "alice", "--status", "processed")
		require.NoError(t, err)
		assert.Contains(t, out, "notes.md")
		assert.Contains(t, out, "processed")
	})

	t.Run("files rejects unknown status", func(t *testing.T) {
		_, err := run(t, "--config", cfg, "files", "--owner", "alice", "--status", "lost")
		require.Error(t, err)
	})

	t.Run("search is owner scoped", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "search", "--owner", "alice", "--query", "ledger")
		require.NoError(t, err)
		assert.Contains(t, out, "notes.md#0")

		out, err = run(t, "--config", cfg, "search", "--owner", "bob", "--query", "ledger")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("chat streams events", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "chat", "--owner", "alice", "--message", "Who keeps the ledger?")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "event: conversation\ndata: "))
		assert.True(t, strings.HasSuffix(out, "event: done\ndata: "+chat.DoneSentinel+"\n\n"))
	})

	t.Run("history lists the conversation", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "history", "--owner", "alice")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
	})

	t.Run("chat on a foreign conversation fails", func(t *testing.T) {
		_, err := run(t, "--config", cfg, "chat", "--owner", "bob", "--conversation", "missing", "--message", "hi")
		require.ErrorIs(t, err, chat.ErrConversationNotFound)
	})

	t.Run("audit shows ingestion", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "audit", "--owner", "alice")
		require.NoError(t, err)
		assert.Contains(t, out, "INGEST_SUCCESS")
	})

	t.Run("reembed rewrites vectors", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "reembed", "--batch-size", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "Re-embedded")
	})
}

func TestIngestCommand_Errors(t *testing.T) {
	cfg := writeConfig(t)

	t.Run("no files", func(t *testing.T) {
		_, err := run(t, "--config", cfg, "ingest", "--owner", "alice")
		require.Error(t, err)
	})

	t.Run("unsupported format", func(t *testing.T) {
		doc := filepath.Join(t.TempDir(), "image.png")
		require.NoError(t, os.WriteFile(doc, []byte{0x89, 'P', 'N', 'G'}, 0o600))
		out, err := run(t, "--config", cfg, "ingest", "--owner", "alice", doc)
		require.Error(t, err)
		assert.Contains(t, out, "image.png\tfailed")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "--config", cfg, "ingest", "--owner", "alice", "/does/not/exist.txt")
		require.Error(t, err)
	})
}
