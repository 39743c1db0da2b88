package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

type stubFetcher struct {
	doc      deck.Document
	err      error
	requests []deck.FetchRequest
}

func (s *stubFetcher) Fetch(_ context.Context, req deck.FetchRequest) (deck.Document, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return deck.Document{}, s.err
	}
	return s.doc, nil
}

type stubDetector bool

func (d stubDetector) ShouldPromote(deck.Document) bool { return bool(d) }

func TestChainPlainOnly(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{doc: deck.Document{Body: []byte("plain")}}
	headless := &stubFetcher{doc: deck.Document{Body: []byte("rendered"), Headless: true}}
	chain := NewChain(plain, headless, stubDetector(false), nil)

	doc, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://mtggoldfish.com/deck/1"})
	require.NoError(t, err)
	assert.Equal(t, "plain", string(doc.Body))
	assert.Empty(t, headless.requests)
}

func TestChainPromotesFlaggedPages(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{doc: deck.Document{Body: []byte("<div id=\"__next\"></div>")}}
	headless := &stubFetcher{doc: deck.Document{Body: []byte("rendered"), Headless: true}}
	chain := NewChain(plain, headless, stubDetector(true), nil)

	doc, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://moxfield.com/decks/abc"})
	require.NoError(t, err)
	assert.True(t, doc.Headless)
	require.Len(t, headless.requests, 1)
	assert.True(t, headless.requests[0].Headless)
}

type recordingWaiter struct {
	urls []string
	err  error
}

func (w *recordingWaiter) Wait(_ context.Context, rawURL string) error {
	w.urls = append(w.urls, rawURL)
	return w.err
}

func TestChainWaitsBeforePromotedFetch(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{doc: deck.Document{Body: []byte("shell")}}
	headless := &stubFetcher{doc: deck.Document{Body: []byte("rendered"), Headless: true}}
	waiter := &recordingWaiter{}
	chain := NewChain(plain, headless, stubDetector(true), nil).WithWaiter(waiter)

	_, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://moxfield.com/decks/abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://moxfield.com/decks/abc"}, waiter.urls)

	plainOnly := NewChain(plain, headless, stubDetector(false), nil).WithWaiter(waiter)
	_, err = plainOnly.Fetch(context.Background(), deck.FetchRequest{URL: "https://mtggoldfish.com/deck/1"})
	require.NoError(t, err)
	assert.Len(t, waiter.urls, 1, "unpromoted fetches are paced by the caller only")
}

func TestChainKeepsPlainDocumentWhenPacingWaitFails(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{doc: deck.Document{Body: []byte("shell")}}
	headless := &stubFetcher{doc: deck.Document{Body: []byte("rendered"), Headless: true}}
	chain := NewChain(plain, headless, stubDetector(true), nil).WithWaiter(&recordingWaiter{err: context.Canceled})

	doc, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://moxfield.com/decks/abc"})
	require.NoError(t, err)
	assert.Equal(t, "shell", string(doc.Body))
	assert.Empty(t, headless.requests)
}

func TestChainKeepsPlainDocumentWhenPromotionFails(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{doc: deck.Document{Body: []byte("plain")}}
	headless := &stubFetcher{err: errors.New("chrome crashed")}
	chain := NewChain(plain, headless, stubDetector(true), nil)

	doc, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://moxfield.com/decks/abc"})
	require.NoError(t, err)
	assert.Equal(t, "plain", string(doc.Body))
}

func TestChainForcedHeadless(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{}
	headless := &stubFetcher{doc: deck.Document{Body: []byte("rendered"), Headless: true}}
	chain := NewChain(plain, headless, nil, nil)

	doc, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://tappedout.net/mtg-decks/x/", Headless: true})
	require.NoError(t, err)
	assert.True(t, doc.Headless)
	assert.Empty(t, plain.requests)
}

func TestChainForcedHeadlessWithoutBrowserFallsBackToPlain(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{doc: deck.Document{Body: []byte("plain")}}
	chain := NewChain(plain, nil, nil, nil)

	doc, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://tappedout.net/mtg-decks/x/", Headless: true})
	require.NoError(t, err)
	assert.Equal(t, "plain", string(doc.Body))
}

func TestChainPlainError(t *testing.T) {
	t.Parallel()

	cause := &deck.FetchError{URL: "https://pastebin.com/raw/x", StatusCode: 404, Attempts: 1}
	chain := NewChain(&stubFetcher{err: cause}, nil, nil, nil)

	_, err := chain.Fetch(context.Background(), deck.FetchRequest{URL: "https://pastebin.com/raw/x"})
	var fetchErr *deck.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 404, fetchErr.StatusCode)
}
