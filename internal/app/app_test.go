package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/app"
	"github.com/JakeFAU/deck-harvester/internal/config"
	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/harvest"
)

type pasteFetcher struct {
	body  string
	calls atomic.Int32
}

func (f *pasteFetcher) Fetch(_ context.Context, req deck.FetchRequest) (deck.Document, error) {
	f.calls.Add(1)
	return deck.Document{URL: req.URL, FinalURL: req.URL, StatusCode: http.StatusOK, ContentType: "text/plain", Body: []byte(f.body)}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	bulk := filepath.Join(dir, "oracle.json")
	data, err := json.Marshal([]map[string]any{
		{"name": "Lightning Bolt", "type_line": "Instant", "color_identity": []string{"R"}},
		{"name": "Mountain", "type_line": "Basic Land — Mountain", "color_identity": []string{}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(bulk, data, 0o600))

	return config.Config{
		Fetcher: config.FetcherConfig{Timeout: time.Second, MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Router:  config.RouterConfig{MaxDepth: 1, MaxChildren: 5},
		Cards:   config.CardsConfig{BulkPath: bulk, FuzzyThreshold: 0.92},
		Archive: config.ArchiveConfig{Mode: "all", Backend: config.BackendLocal, Prefix: "archive", BaseDir: filepath.Join(dir, "archive")},
		Publish: config.PublishConfig{Topic: "decks"},
	}
}

func newApp(t *testing.T, cfg config.Config, fetch deck.Fetcher) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg,
		app.WithLogger(zap.NewNop()),
		app.WithFetcher(fetch),
		app.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNewHarvestsPastedAndFetchedInputs(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	fetch := &pasteFetcher{body: "4 Lightning Bolt\n2 Mountain\n"}
	a := newApp(t, cfg, fetch)

	report, err := a.Harvester.Run(context.Background(), []string{
		"4 Lightning Bolt\n20 Mountain",
		"https://pastebin.com/Ab3dEf9h",
		"https://example.org/not-a-deck",
	})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, harvest.StatusOK, report.Outcomes[0].Status)
	assert.Equal(t, harvest.StatusOK, report.Outcomes[1].Status)
	assert.Equal(t, harvest.StatusUnsupported, report.Outcomes[2].Status)
	assert.EqualValues(t, 1, fetch.calls.Load())
	require.Len(t, report.Decks(), 2)
	assert.Empty(t, report.Outcomes[0].Decks[0].Warnings)

	archived := report.Outcomes[1].Archived
	require.Len(t, archived, 1)
	assert.True(t, strings.HasPrefix(archived[0], "file://"))
	assert.Contains(t, archived[0], "/archive/pastebin/")
}

func TestShortenerHopsHonorHostDelay(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits []time.Time
	)
	shortener := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		http.Redirect(w, r, "https://pastebin.com/Deck"+strings.TrimPrefix(r.URL.Path, "/"), http.StatusFound)
	}))
	defer shortener.Close()

	const delay = 300 * time.Millisecond
	cfg := testConfig(t)
	cfg.Archive = config.ArchiveConfig{Mode: "none", Backend: config.BackendMemory}
	cfg.Fetcher.MinHostDelay = delay
	cfg.Router.Unshorten.Shorteners = []string{"127.0.0.1"}
	a := newApp(t, cfg, &pasteFetcher{body: "4 Lightning Bolt\n2 Mountain\n"})

	report, err := a.Harvester.Run(context.Background(), []string{
		shortener.URL + "/A1",
		shortener.URL + "/B2",
		shortener.URL + "/C3",
	})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hits, 3)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i].Sub(hits[i-1]), delay-50*time.Millisecond, "hop %d", i)
	}
}

func TestNewMissingCardDatabaseIsConfigError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Cards.BulkPath = ""
	_, err := app.New(context.Background(), cfg, app.WithLogger(zap.NewNop()), app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.True(t, deck.IsConfigError(err))
}

func TestServerExposesHarvestAndProgress(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Archive = config.ArchiveConfig{Mode: "none", Backend: config.BackendMemory}
	a := newApp(t, cfg, &pasteFetcher{})

	srv := httptest.NewServer(a.Server().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/harvest", "application/json", strings.NewReader(`{"input":"4 Lightning Bolt\n2 Mountain"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status string      `json:"status"`
		Decks  []deck.Deck `json:"decks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
	require.Len(t, out.Decks, 1)

	require.Eventually(t, func() bool {
		return len(a.Status.Batches()) == 1 && !a.Status.Batches()[0].Running
	}, 2*time.Second, 20*time.Millisecond)

	resp, err = http.Get(srv.URL + "/v1/routes?input=" + "https://moxfield.com/decks/abc123")
	require.NoError(t, err)
	defer resp.Body.Close()
	var route map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&route))
	assert.Equal(t, "decklist", route["kind"])
	assert.Equal(t, true, route["protected"])
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := app.New(context.Background(), cfg,
		app.WithLogger(zap.NewNop()),
		app.WithFetcher(&pasteFetcher{}),
		app.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	a.Close(context.Background())
	a.Close(context.Background())
}
