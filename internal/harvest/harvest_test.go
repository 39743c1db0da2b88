package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/deckfile"
	"github.com/JakeFAU/deck-harvester/internal/normalize"
	"github.com/JakeFAU/deck-harvester/internal/progress"
	pubmemory "github.com/JakeFAU/deck-harvester/internal/publisher/memory"
	"github.com/JakeFAU/deck-harvester/internal/router"
	"github.com/JakeFAU/deck-harvester/internal/storage/memory"
)

// stubAdapter reads plain deck text, or one child URL per line for
// containers. A body of "broken" fails to parse.
type stubAdapter struct {
	name      string
	container bool
}

func (a stubAdapter) Name() string { return a.name }

func (a stubAdapter) Request(target *url.URL) (deck.FetchRequest, error) {
	return deck.FetchRequest{URL: target.String()}, nil
}

func (a stubAdapter) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	body := string(doc.Body)
	if body == "broken" {
		return deck.Parsed{}, deck.NewParseError(a.name, target.String(), "unexpected layout", nil)
	}
	if a.container {
		return deck.Parsed{Children: strings.Fields(body)}, nil
	}
	raw := deckfile.Parse(body)
	raw.Title = "Deck " + strings.TrimPrefix(target.Path, "/deck/")
	return deck.Parsed{Decklists: []deck.RawDecklist{raw}}, nil
}

// fakeFetcher serves canned documents keyed by URL.
type fakeFetcher struct {
	mu       sync.Mutex
	docs     map[string]string
	requests []deck.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, request deck.FetchRequest) (deck.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	body, ok := f.docs[request.URL]
	if !ok {
		return deck.Document{}, &deck.FetchError{URL: request.URL, StatusCode: 404, Err: errors.New("not found")}
	}
	return deck.Document{
		URL:         request.URL,
		FinalURL:    request.URL,
		StatusCode:  200,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(body),
		Headless:    request.Headless,
	}, nil
}

func (f *fakeFetcher) Requested(rawURL string) (deck.FetchRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.URL == rawURL {
			return r, true
		}
	}
	return deck.FetchRequest{}, false
}

// echoResolver resolves every name to itself.
type echoResolver struct{}

func (echoResolver) Resolve(_ context.Context, name string) (deck.Card, deck.ResolutionStage, error) {
	return deck.Card{Name: name}, deck.StageLocal, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", s.n), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type fixture struct {
	harvester *Harvester
	fetcher   *fakeFetcher
	blobs     *memory.BlobStore
	decks     *memory.DeckStore
	publisher *pubmemory.Publisher
	events    *recordingEmitter
	spans     *tracetest.SpanRecorder
}

func newFixture(t *testing.T, cfg Config, docs map[string]string) fixture {
	t.Helper()
	reg := router.NewRegistry()
	for _, r := range []router.Registration{
		{Pattern: router.Pattern{Host: "decks.test", Path: "/deck/*"}, Kind: router.KindDecklist, Adapter: stubAdapter{name: "stub-deck"}},
		{Pattern: router.Pattern{Host: "decks.test", Path: "/list/*"}, Kind: router.KindContainer, Adapter: stubAdapter{name: "stub-list", container: true}},
		{Pattern: router.Pattern{Host: "decks.test", Path: "/guarded/*"}, Kind: router.KindDecklist, Adapter: stubAdapter{name: "stub-guarded"}, Protected: true},
	} {
		require.NoError(t, reg.Register(r))
	}
	f := fixture{
		fetcher:   &fakeFetcher{docs: docs},
		blobs:     memory.NewBlobStore(),
		decks:     memory.NewDeckStore(),
		publisher: pubmemory.New(),
		events:    &recordingEmitter{},
		spans:     tracetest.NewSpanRecorder(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	if cfg.Topic == "" {
		cfg.Topic = "decks"
	}
	h, err := New(Dependencies{
		Router:     router.New(reg, nil, nil),
		Fetcher:    f.fetcher,
		Normalizer: normalize.New(echoResolver{}, nil),
		Blobs:      f.blobs,
		Decks:      f.decks,
		Publisher:  f.publisher,
		Clock:      fixedClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		IDs:        &sequenceIDs{},
		Events:     f.events,
		Tracer:     tp.Tracer("harvest-test"),
	}, cfg, nil)
	require.NoError(t, err)
	f.harvester = h
	return f
}

func statuses(report Report) []Status {
	out := make([]Status, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		out = append(out, o.Status)
	}
	return out
}

func TestRunMixedBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[string]string{
		"https://decks.test/deck/burn":   "4 Lightning Bolt\n20 Mountain",
		"https://decks.test/deck/broken": "broken",
	})
	report, err := f.harvester.Run(context.Background(), []string{
		"4 Counterspell\n20 Island",
		"https://example.org/not-a-deck",
		"https://decks.test/deck/burn",
		"https://decks.test/deck/missing",
		"https://decks.test/deck/broken",
	})
	require.NoError(t, err)
	assert.False(t, report.Canceled)
	assert.Equal(t, []Status{StatusOK, StatusUnsupported, StatusOK, StatusFetchFailed, StatusParseFailed}, statuses(report))
	assert.Equal(t, map[Status]int{StatusOK: 2, StatusUnsupported: 1, StatusFetchFailed: 1, StatusParseFailed: 1}, report.Counts())

	pasted := report.Outcomes[0]
	require.Len(t, pasted.Decks, 1)
	assert.Equal(t, "pasted", pasted.Decks[0].Source)
	assert.Equal(t, router.KindPlainText, pasted.Route)

	burn := report.Outcomes[2]
	require.Len(t, burn.Decks, 1)
	assert.Equal(t, "stub-deck", burn.Adapter)
	assert.Equal(t, "Deck burn", burn.Decks[0].Name)
	assert.Equal(t, "decks.test", burn.Decks[0].Source)
	assert.Equal(t, "https://decks.test/deck/burn", burn.Decks[0].URL)
	assert.NotEmpty(t, burn.Decks[0].ID)

	var fetchErr *deck.FetchError
	require.ErrorAs(t, report.Outcomes[3].Err, &fetchErr)
	var parseErr *deck.ParseError
	require.ErrorAs(t, report.Outcomes[4].Err, &parseErr)
	require.Len(t, report.Outcomes[4].Archived, 1)
	assert.True(t, strings.HasPrefix(report.Outcomes[4].Archived[0], "memory://archive/stub-deck/"))
	assert.Len(t, f.blobs.Paths(), 1, "only the failure is archived")

	assert.Len(t, report.Decks(), 2)
	assert.Len(t, f.decks.Decks(), 2)
	msgs := f.publisher.Messages()
	require.Len(t, msgs, 2)
	var evt deck.DeckEvent
	require.NoError(t, json.Unmarshal(msgs[1].Data, &evt))
	assert.Equal(t, burn.Decks[0].ID, evt.DeckID)
	assert.Equal(t, report.BatchID, evt.BatchID)
	assert.Equal(t, 24, evt.CardCount)
	assert.Equal(t, burn.Decks[0].Fingerprint(), evt.Fingerprint)

	assert.Equal(t, []progress.Stage{
		progress.StageBatchStart,
		progress.StageInputDone,
		progress.StageInputDone,
		progress.StageInputDone,
		progress.StageInputDone,
		progress.StageInputDone,
		progress.StageBatchDone,
	}, f.events.Stages())
	assert.Equal(t, "<pasted text>", f.events.events[1].Input)
	assert.Equal(t, "completed", f.events.events[6].Status)
}

func TestRunTracesStages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[string]string{
		"https://decks.test/deck/burn":   "4 Lightning Bolt\n20 Mountain",
		"https://decks.test/deck/broken": "broken",
	})
	_, err := f.harvester.Run(context.Background(), []string{
		"https://decks.test/deck/burn",
		"https://decks.test/deck/broken",
	})
	require.NoError(t, err)

	byName := make(map[string][]sdktrace.ReadOnlySpan)
	for _, s := range f.spans.Ended() {
		byName[s.Name()] = append(byName[s.Name()], s)
	}
	for _, name := range []string{"harvest.input", "harvest.classify", "harvest.visit", "harvest.fetch", "harvest.parse"} {
		assert.Len(t, byName[name], 2, name)
	}
	assert.Len(t, byName["harvest.normalize"], 1)
	assert.Len(t, byName["harvest.accept"], 1)

	parses := byName["harvest.parse"]
	assert.Equal(t, codes.Unset, parses[0].Status().Code)
	assert.Equal(t, codes.Error, parses[1].Status().Code)

	input := byName["harvest.input"][0]
	for _, name := range []string{"harvest.classify", "harvest.visit"} {
		assert.Equal(t, input.SpanContext().SpanID(), byName[name][0].Parent().SpanID(), name)
	}
	visit := byName["harvest.visit"][0]
	for _, name := range []string{"harvest.fetch", "harvest.parse", "harvest.normalize"} {
		assert.Equal(t, visit.SpanContext().SpanID(), byName[name][0].Parent().SpanID(), name)
	}
}

func TestRunFollowsContainersToMaxDepth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxDepth: 1}, map[string]string{
		"https://decks.test/list/top": strings.Join([]string{
			"https://decks.test/deck/a",
			"https://decks.test/deck/b",
			"https://decks.test/deck/a-again",
			"https://example.org/elsewhere",
			"https://decks.test/list/nested",
			"https://decks.test/deck/a",
		}, "\n"),
		"https://decks.test/list/nested":  "https://decks.test/deck/c",
		"https://decks.test/deck/a":       "4 Lightning Bolt",
		"https://decks.test/deck/a-again": "4 lightning bolt",
		"https://decks.test/deck/b":       "4 Counterspell",
		"https://decks.test/deck/c":       "4 Brainstorm",
	})
	out, err := f.harvester.Process(context.Background(), "https://decks.test/list/top")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, router.KindContainer, out.Route)
	require.Len(t, out.Decks, 2)
	assert.Equal(t, "Deck a", out.Decks[0].Name)
	assert.Equal(t, "Deck b", out.Decks[1].Name)
	assert.Equal(t, 1, out.Duplicates)
	assert.Equal(t, 4, out.Children)
	assert.Zero(t, out.ChildFailures)

	_, fetched := f.fetcher.Requested("https://decks.test/deck/c")
	assert.False(t, fetched, "children beyond max depth are not followed")
}

func TestRunCapsChildrenPerContainer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxChildren: 1}, map[string]string{
		"https://decks.test/list/top": "https://decks.test/deck/a\nhttps://decks.test/deck/missing",
		"https://decks.test/deck/a":   "4 Lightning Bolt",
	})
	out, err := f.harvester.Process(context.Background(), "https://decks.test/list/top")
	require.NoError(t, err)
	assert.Len(t, out.Decks, 1)
	assert.Equal(t, 1, out.Children)
	_, fetched := f.fetcher.Requested("https://decks.test/deck/missing")
	assert.False(t, fetched)
}

func TestRunCountsChildFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[string]string{
		"https://decks.test/list/top": "https://decks.test/deck/missing\nhttps://decks.test/deck/a",
		"https://decks.test/deck/a":   "4 Lightning Bolt",
	})
	out, err := f.harvester.Process(context.Background(), "https://decks.test/list/top")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, 2, out.Children)
	assert.Equal(t, 1, out.ChildFailures)
	assert.Len(t, out.Decks, 1)
}

func TestProtectedPolicies(t *testing.T) {
	t.Parallel()

	const target = "https://decks.test/guarded/x"
	tests := []struct {
		policy       ProtectedPolicy
		wantStatus   Status
		wantFetch    bool
		wantHeadless bool
	}{
		{ProtectedSkip, StatusSkipped, false, false},
		{ProtectedHeadless, StatusOK, true, true},
		{ProtectedAttempt, StatusOK, true, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.policy), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Config{ProtectedPolicy: tc.policy}, map[string]string{target: "4 Lightning Bolt"})
			out, err := f.harvester.Process(context.Background(), target)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, out.Status)
			if tc.policy == ProtectedSkip {
				assert.ErrorIs(t, out.Err, deck.ErrProtectedSource)
			}
			request, fetched := f.fetcher.Requested(target)
			assert.Equal(t, tc.wantFetch, fetched)
			assert.Equal(t, tc.wantHeadless, request.Headless)
		})
	}
}

func TestRunSkipsAlreadyVisitedURLs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[string]string{"https://decks.test/deck/a": "4 Lightning Bolt"})
	report, err := f.harvester.Run(context.Background(), []string{
		"https://decks.test/deck/a",
		"https://www.decks.test/deck/a/",
	})
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusOK, StatusSkipped}, statuses(report))
	assert.ErrorIs(t, report.Outcomes[1].Err, ErrAlreadyVisited)
}

func TestRunDedupesPastedDecksInBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	report, err := f.harvester.Run(context.Background(), []string{
		"4 Lightning Bolt\n2 Mountain",
		"2 Mountain\n4 lightning bolt",
	})
	require.NoError(t, err)
	assert.Len(t, report.Decks(), 1)
	assert.Equal(t, 1, report.Outcomes[1].Duplicates)
	assert.Len(t, f.publisher.Messages(), 1)
}

func TestRunEmptyPasteIsParseFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	out, err := f.harvester.Process(context.Background(), "nothing to see here\njust words")
	require.NoError(t, err)
	assert.Equal(t, StatusParseFailed, out.Status)
	assert.ErrorIs(t, out.Err, deck.ErrEmptyDecklist)
}

func TestKnownDeckIsNotRepublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	first, err := f.harvester.Process(context.Background(), "4 Lightning Bolt")
	require.NoError(t, err)
	require.Len(t, first.Decks, 1)

	second, err := f.harvester.Process(context.Background(), "4 Lightning Bolt")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Known)
	assert.Len(t, second.Decks, 1)
	assert.Len(t, f.decks.Decks(), 1)
	assert.Len(t, f.publisher.Messages(), 1)
}

func TestArchiveModes(t *testing.T) {
	t.Parallel()

	docs := map[string]string{
		"https://decks.test/deck/a":      "4 Lightning Bolt",
		"https://decks.test/deck/broken": "broken",
	}
	inputs := []string{"https://decks.test/deck/a", "https://decks.test/deck/broken"}

	all := newFixture(t, Config{ArchiveMode: ArchiveAll, ArchivePrefix: "raw"}, docs)
	_, err := all.harvester.Run(context.Background(), inputs)
	require.NoError(t, err)
	paths := all.blobs.Paths()
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.True(t, strings.HasPrefix(p, "raw/stub-deck/"), p)
		assert.True(t, strings.HasSuffix(p, ".txt"), p)
	}

	none := newFixture(t, Config{ArchiveMode: ArchiveNone}, docs)
	_, err = none.harvester.Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Empty(t, none.blobs.Paths())
}

func TestRunStopsWhenCanceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.harvester.Run(ctx, []string{"4 Lightning Bolt"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Canceled)
	assert.Empty(t, report.Outcomes)
	stages := f.events.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "canceled", f.events.events[1].Status)

	_, err = f.harvester.Process(ctx, "4 Lightning Bolt")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{}, Config{}, nil)
	require.ErrorContains(t, err, "router is required")
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	body := []byte("{}")
	tests := []struct {
		doc  deck.Document
		want string
	}{
		{deck.Document{Body: body, ContentType: "application/json; charset=utf-8"}, ".json"},
		{deck.Document{Body: body, ContentType: "text/html"}, ".html"},
		{deck.Document{Body: body, ContentType: "text/plain"}, ".txt"},
		{deck.Document{Body: body, ContentType: "application/json", Headless: true}, ".html"},
		{deck.Document{Body: body}, ".bin"},
	}
	for _, tc := range tests {
		got := ArchivePath("/archive/", "Moxfield", tc.doc)
		assert.True(t, strings.HasPrefix(got, "archive/moxfield/44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a"), got)
		assert.True(t, strings.HasSuffix(got, tc.want), got)
	}
}

func TestParsePolicies(t *testing.T) {
	t.Parallel()

	p, err := ParseProtectedPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ProtectedAttempt, p)
	p, err = ParseProtectedPolicy(" Headless ")
	require.NoError(t, err)
	assert.Equal(t, ProtectedHeadless, p)
	_, err = ParseProtectedPolicy("bypass")
	require.Error(t, err)

	m, err := ParseArchiveMode("")
	require.NoError(t, err)
	assert.Equal(t, ArchiveFailures, m)
	m, err = ParseArchiveMode("ALL")
	require.NoError(t, err)
	assert.Equal(t, ArchiveAll, m)
	_, err = ParseArchiveMode("some")
	require.Error(t, err)
}
