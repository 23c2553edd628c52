package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/samples/journal"
	"github.com/weegigs/wee-ledger-go/support"
)

func configure(t *testing.T) *support.Config {
	t.Helper()

	t.Setenv("LEDGER_STORE_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("LEDGER_STORE_DURABILITY", "max-performance")
	t.Setenv("LEDGER_LOG_FORMAT", "json")
	t.Setenv("LEDGER_LOG_LEVEL", "error")

	cfg, err := support.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func seed(t *testing.T, cfg *support.Config) {
	t.Helper()

	logger, err := support.NewLogger(cfg.Log)
	require.NoError(t, err)

	app, cleanup, err := InitializeApp(cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	_, err = app.Journal.Execute(context.Background(), "JE001", journal.Record{
		Description: "opening balance",
		Lines:       []journal.Line{{Account: "bank", Amount: 500}, {Account: "equity", Amount: -500}},
		By:          "ana",
	})
	require.NoError(t, err)
	_, err = app.Journal.Execute(context.Background(), "JE001", journal.Approve{By: "bo"})
	require.NoError(t, err)
}

func TestCommands(t *testing.T) {
	cfg := configure(t)
	seed(t, cfg)

	t.Run("dump", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"dump"}, &out))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"type":"journal:recorded"`)
		assert.Contains(t, lines[1], `"sequence":2`)
	})

	t.Run("dump with limit", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"dump", "-from", "2", "-limit", "1"}, &out))
		assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	})

	t.Run("rebuild", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"rebuild"}, &out))
		assert.Equal(t, "journal v1 rebuilt to sequence 2\n", out.String())
	})

	t.Run("rebuild unknown projection", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, run([]string{"rebuild", "-name", "missing"}, &out))
	})

	t.Run("stats", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"stats"}, &out))
		assert.Contains(t, out.String(), `"latest_sequence": 2`)
		assert.Contains(t, out.String(), `"projection_name": "journal"`)
	})

	t.Run("unknown command", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, run([]string{"audit"}, &out))
	})

	t.Run("missing command", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, run(nil, &out))
	})
}
