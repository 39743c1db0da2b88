package router

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

type fakeAdapter string

func (a fakeAdapter) Name() string { return string(a) }

func (a fakeAdapter) Request(target *url.URL) (deck.FetchRequest, error) {
	return deck.FetchRequest{URL: target.String()}, nil
}

func (a fakeAdapter) Parse(context.Context, *url.URL, deck.Document) (deck.Parsed, error) {
	return deck.Parsed{}, nil
}

type fakeResolver struct {
	to  string
	err error
}

func (r fakeResolver) Resolve(_ context.Context, target *url.URL) (*url.URL, error) {
	if r.err != nil {
		return nil, r.err
	}
	if target.Hostname() != "bit.ly" {
		return target, nil
	}
	return url.Parse(r.to)
}

func mustRegister(t *testing.T, reg *Registry, regs ...Registration) {
	t.Helper()
	for _, r := range regs {
		require.NoError(t, reg.Register(r))
	}
}

func testRegistrations() []Registration {
	return []Registration{
		{Pattern: Pattern{Host: "moxfield.com", Path: "/decks/*"}, Kind: KindDecklist, Adapter: fakeAdapter("moxfield-deck"), Protected: true},
		{Pattern: Pattern{Host: "moxfield.com", Path: "/decks/public"}, Kind: KindContainer, Adapter: fakeAdapter("moxfield-search")},
		{Pattern: Pattern{Host: "archidekt.com", Path: "/decks/*/**"}, Kind: KindDecklist, Adapter: fakeAdapter("archidekt")},
		{Pattern: Pattern{Host: "mtgtop8.com", Path: "/event", Query: []string{"e"}}, Kind: KindContainer, Adapter: fakeAdapter("mtgtop8-event")},
		{Pattern: Pattern{Host: "mtgtop8.com", Path: "/event", Query: []string{"e", "d"}}, Kind: KindDecklist, Adapter: fakeAdapter("mtgtop8-deck")},
		{Pattern: Pattern{Host: "pastebin.com", Path: "/*"}, Kind: KindDecklist, Adapter: fakeAdapter("pastebin")},
	}
}

func newTestRouter(t *testing.T, resolver Resolver) *Router {
	t.Helper()
	reg := NewRegistry()
	mustRegister(t, reg, testRegistrations()...)
	return New(reg, resolver, nil)
}

func TestClassifySpecificity(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, nil)
	testCases := []struct {
		input   string
		kind    Kind
		adapter string
	}{
		{"https://www.moxfield.com/decks/public?q=burn", KindContainer, "moxfield-search"},
		{"https://moxfield.com/decks/Ab3dE_f", KindDecklist, "moxfield-deck"},
		{"https://MOXFIELD.com/Decks/PUBLIC/", KindContainer, "moxfield-search"},
		{"https://mtgtop8.com/event?e=123&d=456&f=MO", KindDecklist, "mtgtop8-deck"},
		{"https://mtgtop8.com/event?e=123", KindContainer, "mtgtop8-event"},
		{"https://archidekt.com/decks/42", KindDecklist, "archidekt"},
		{"https://archidekt.com/decks/42/mono-red-burn#main", KindDecklist, "archidekt"},
		{"https://m.pastebin.com/XyZ12", KindDecklist, "pastebin"},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			route, err := r.Classify(context.Background(), tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.kind, route.Kind)
			require.NotNil(t, route.Registration)
			assert.Equal(t, tc.adapter, route.Registration.Adapter.Name())
			assert.Empty(t, route.URL.Fragment)
		})
	}
}

func TestMatchOrderIndependentOfRegistrationOrder(t *testing.T) {
	t.Parallel()

	forward := NewRegistry()
	mustRegister(t, forward, testRegistrations()...)

	regs := testRegistrations()
	backward := NewRegistry()
	for i := len(regs) - 1; i >= 0; i-- {
		mustRegister(t, backward, regs[i])
	}

	for _, raw := range []string{
		"https://moxfield.com/decks/public",
		"https://mtgtop8.com/event?e=1&d=2",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		a, b := forward.Match(u), backward.Match(u)
		require.Len(t, a, 2)
		require.Len(t, b, 2)
		for i := range a {
			assert.Equal(t, a[i].Adapter.Name(), b[i].Adapter.Name(), raw)
		}
	}
}

func TestMatchTiesKeepRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	mustRegister(t, reg,
		Registration{Pattern: Pattern{Host: "mtggoldfish.com", Path: "/deck/*"}, Kind: KindDecklist, Adapter: fakeAdapter("first")},
		Registration{Pattern: Pattern{Host: "mtggoldfish.com", Path: "/deck/*"}, Kind: KindDecklist, Adapter: fakeAdapter("second")},
	)
	u, err := url.Parse("https://www.mtggoldfish.com/deck/6136142")
	require.NoError(t, err)
	matches := reg.Match(u)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Adapter.Name())
}

func TestMatchPrefersExplicitSubdomain(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	mustRegister(t, reg,
		Registration{Pattern: Pattern{Host: "moxfield.com", Path: "/decks/*"}, Kind: KindDecklist, Adapter: fakeAdapter("site")},
		Registration{Pattern: Pattern{Host: "api2.moxfield.com", Path: "/decks/*"}, Kind: KindDecklist, Adapter: fakeAdapter("api")},
	)
	u, err := url.Parse("https://api2.moxfield.com/decks/abc")
	require.NoError(t, err)
	matches := reg.Match(u)
	require.Len(t, matches, 2)
	assert.Equal(t, "api", matches[0].Adapter.Name())
}

func TestClassifyUnsupportedIsNotAnError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, nil)
	route, err := r.Classify(context.Background(), "https://example.com/decks/1#top")
	require.NoError(t, err)
	assert.Equal(t, KindUnsupported, route.Kind)
	assert.Nil(t, route.Registration)
	assert.Equal(t, "https://example.com/decks/1", route.URL.String())
}

func TestClassifyPlainText(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, nil)
	for _, input := range []string{"4 Lightning Bolt\n2 Mountain", "Island", "  Sol Ring  "} {
		route, err := r.Classify(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, KindPlainText, route.Kind, input)
		assert.Nil(t, route.URL)
	}
}

func TestClassifySchemelessInputs(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, nil)
	route, err := r.Classify(context.Background(), "www.moxfield.com/decks/abc")
	require.NoError(t, err)
	assert.Equal(t, KindDecklist, route.Kind)
	assert.Equal(t, "https", route.URL.Scheme)

	route, err = r.Classify(context.Background(), "pastebin.com/abc123")
	require.NoError(t, err)
	assert.Equal(t, KindDecklist, route.Kind)
}

func TestClassifyUnwrapsYouTubeRedirect(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, fakeResolver{err: errors.New("resolver unavailable")})
	route, err := r.Classify(context.Background(),
		"https://www.youtube.com/redirect?event=video_description&q=https%3A%2F%2Fpastebin.com%2FabcD")
	require.NoError(t, err)
	assert.Equal(t, KindDecklist, route.Kind)
	assert.Equal(t, "pastebin.com/abcD", route.Key)
}

func TestClassifyResolvesShortener(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, fakeResolver{to: "https://archidekt.com/decks/9/"})
	route, err := r.Classify(context.Background(), "https://bit.ly/3deck")
	require.NoError(t, err)
	assert.Equal(t, KindDecklist, route.Kind)
	assert.Equal(t, "archidekt.com/decks/9", route.Key)
}

func TestClassifyResolverFailureFallsBack(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, fakeResolver{err: errors.New("dns failure")})
	route, err := r.Classify(context.Background(), "https://moxfield.com/decks/abc")
	require.NoError(t, err)
	assert.Equal(t, KindDecklist, route.Kind)
}

func TestClassifyCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newTestRouter(t, nil)
	_, err := r.Classify(ctx, "https://moxfield.com/decks/abc")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	adapter := fakeAdapter("x")
	testCases := []Registration{
		{Pattern: Pattern{Host: "", Path: "/decks/*"}, Kind: KindDecklist, Adapter: adapter},
		{Pattern: Pattern{Host: "archidekt.com", Path: "/**/decks"}, Kind: KindDecklist, Adapter: adapter},
		{Pattern: Pattern{Host: "archidekt.com", Path: "/decks"}, Kind: KindPlainText, Adapter: adapter},
		{Pattern: Pattern{Host: "archidekt.com", Path: "/decks"}, Kind: KindDecklist},
		{Pattern: Pattern{Host: "mtgtop8.com", Path: "/event", Query: []string{" "}}, Kind: KindDecklist, Adapter: adapter},
	}
	for _, tc := range testCases {
		err := reg.Register(tc)
		require.ErrorIs(t, err, ErrInvalidPattern, tc.Pattern.String())
	}
	assert.Empty(t, reg.Registrations())
}

func TestCanonicalKey(t *testing.T) {
	t.Parallel()

	a, err := url.Parse("https://www.Moxfield.com/decks/AbC/?b=2&A=1")
	require.NoError(t, err)
	b, err := url.Parse("https://moxfield.com/decks/AbC?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, CanonicalKey(a), CanonicalKey(b))
	assert.Equal(t, "moxfield.com/decks/AbC?a=1&b=2", CanonicalKey(b))
	assert.Empty(t, CanonicalKey(nil))
}
