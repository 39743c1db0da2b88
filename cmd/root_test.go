package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/app"
	"github.com/JakeFAU/deck-harvester/internal/config"
	"github.com/JakeFAU/deck-harvester/internal/deck"
)

type pasteFetcher struct{}

func (pasteFetcher) Fetch(_ context.Context, req deck.FetchRequest) (deck.Document, error) {
	return deck.Document{
		URL:         req.URL,
		FinalURL:    req.URL,
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte("Deck\n4 Lightning Bolt\n20 Mountain\n"),
	}, nil
}

type closeHookKey struct{}

func TestMain(m *testing.M) {
	newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		a, err := app.New(ctx, cfg,
			app.WithLogger(zap.NewNop()),
			app.WithFetcher(pasteFetcher{}),
			app.WithRegisterer(prometheus.NewRegistry()),
		)
		if err != nil {
			return nil, err
		}
		if hook, ok := ctx.Value(closeHookKey{}).(func()); ok {
			a.OnClose("test-hook", func(context.Context) error {
				hook()
				return nil
			})
		}
		return a, nil
	}
	os.Exit(m.Run())
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	bulk := filepath.Join(dir, "oracle.json")
	data, err := json.Marshal([]map[string]any{
		{"name": "Lightning Bolt", "type_line": "Instant", "color_identity": []string{"R"}},
		{"name": "Mountain", "type_line": "Basic Land — Mountain", "color_identity": []string{}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(bulk, data, 0o600))

	path := filepath.Join(dir, "config.yaml")
	body := "fetcher:\n  min_host_delay: 0s\ncards:\n  bulk_path: " + bulk + "\n  remote_enabled: false\narchive:\n  mode: none\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	return executeContext(t, context.Background(), stdin, args...)
}

func executeContext(t *testing.T, ctx context.Context, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root, closeApp := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	closeApp(context.WithoutCancel(ctx))
	return stdout.String(), stderr.String(), err
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "4 Lightning Bolt\n2 Mountain\n", "parse", "--config", writeTestConfig(t), "--format", "arena")
	require.NoError(t, err)
	assert.Contains(t, out, "Deck\n4 Lightning Bolt\n2 Mountain\n")
}

func TestParseCommandRejectsEmptyStdin(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "  \n", "parse", "--config", writeTestConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no deck text")
}

func TestHarvestCommandWritesFiles(t *testing.T) {
	t.Parallel()

	outDir := filepath.Join(t.TempDir(), "decks")
	inputFile := filepath.Join(t.TempDir(), "inputs.txt")
	require.NoError(t, os.WriteFile(inputFile, []byte("# burn\nhttps://pastebin.com/Ab3dEf9h\n\nhttps://example.org/nope\n"), 0o600))

	_, stderr, err := execute(t, "", "harvest", "--config", writeTestConfig(t), "--input", inputFile, "--format", "forge", "--out", outDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".dck", filepath.Ext(entries[0].Name()))
	assert.Contains(t, stderr, "unsupported")
	assert.Contains(t, stderr, "pastebin")
}

func TestHarvestCommandNeedsInputs(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "", "harvest", "--config", writeTestConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no inputs")
}

func TestAppClosedWhenCommandFails(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	ctx := context.WithValue(context.Background(), closeHookKey{}, func() { closed.Add(1) })

	_, _, err := executeContext(t, ctx, "", "harvest", "--config", writeTestConfig(t))
	require.Error(t, err)
	assert.EqualValues(t, 1, closed.Load())

	_, _, err = executeContext(t, ctx, "4 Lightning Bolt\n", "parse", "--config", writeTestConfig(t))
	require.NoError(t, err)
	assert.EqualValues(t, 2, closed.Load())
}

func TestRoutesCommand(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "", "routes", "--config", writeTestConfig(t), "https://www.moxfield.com/decks/abc123", "https://example.org/x")
	require.NoError(t, err)
	assert.Contains(t, out, "moxfield")
	assert.Contains(t, out, "decklist")
	assert.Contains(t, out, "unsupported")

	out, _, err = execute(t, "", "routes", "--config", writeTestConfig(t), "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "mtgtop8")
}

func TestMissingCardDatabaseFailsStartup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))
	_, _, err := execute(t, "", "routes", "--config", path, "https://moxfield.com/decks/x")
	require.Error(t, err)
	assert.True(t, deck.IsConfigError(err))
}

func TestFileStem(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "red-deck-wins-modern", fileStem(deck.Deck{Name: "Red Deck Wins (Modern)"}))
	assert.Equal(t, "deck-abc", fileStem(deck.Deck{Name: "!!!", ID: "abc"}))
	assert.Len(t, fileStem(deck.Deck{Name: strings.Repeat("a", 100)}), maxStem)
}

func TestWriteDeckFilesNeverOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	decks := []deck.Deck{{Name: "Burn"}, {Name: "Burn"}, {Name: "Burn 2"}, {Name: "Burn"}}
	for i := range decks {
		require.NoError(t, decks[i].Add(deck.Card{Name: "Lightning Bolt"}, i+1, deck.ZoneMainboard))
	}

	paths, err := writeDeckFiles(dir, decks, "plain")
	require.NoError(t, err)

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"burn.txt", "burn-2.txt", "burn-2-2.txt", "burn-3.txt"}, names)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(decks))
}
