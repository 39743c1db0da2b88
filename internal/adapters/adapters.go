package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/router"
)

// Register adds every site adapter to reg.
func Register(reg *router.Registry) error {
	var (
		moxDeck    = MoxfieldDeck{}
		moxSearch  = MoxfieldSearch{}
		moxUser    = MoxfieldUser{}
		archidekt  = Archidekt{}
		goldfish   = MTGGoldfishDeck{}
		goldfishEv = MTGGoldfishTournament{}
		top8Deck   = MTGTop8Deck{}
		top8Event  = MTGTop8Event{}
		tappedout  = TappedOut{}
		pastebin   = Pastebin{}
	)
	registrations := []router.Registration{
		{Pattern: router.Pattern{Host: "moxfield.com", Path: "/decks/*"}, Kind: router.KindDecklist, Adapter: moxDeck, Protected: true},
		{Pattern: router.Pattern{Host: "moxfield.com", Path: "/decks/public"}, Kind: router.KindContainer, Adapter: moxSearch, Protected: true},
		{Pattern: router.Pattern{Host: "moxfield.com", Path: "/users/*"}, Kind: router.KindContainer, Adapter: moxUser, Protected: true},
		{Pattern: router.Pattern{Host: "archidekt.com", Path: "/decks/*/**"}, Kind: router.KindDecklist, Adapter: archidekt},
		{Pattern: router.Pattern{Host: "mtggoldfish.com", Path: "/deck/*"}, Kind: router.KindDecklist, Adapter: goldfish},
		{Pattern: router.Pattern{Host: "mtggoldfish.com", Path: "/archetype/*"}, Kind: router.KindDecklist, Adapter: goldfish},
		{Pattern: router.Pattern{Host: "mtggoldfish.com", Path: "/tournament/*"}, Kind: router.KindContainer, Adapter: goldfishEv},
		{Pattern: router.Pattern{Host: "mtgtop8.com", Path: "/event", Query: []string{"e", "d"}}, Kind: router.KindDecklist, Adapter: top8Deck},
		{Pattern: router.Pattern{Host: "mtgtop8.com", Path: "/event", Query: []string{"e"}}, Kind: router.KindContainer, Adapter: top8Event},
		{Pattern: router.Pattern{Host: "tappedout.net", Path: "/mtg-decks/*"}, Kind: router.KindDecklist, Adapter: tappedout, Protected: true},
		{Pattern: router.Pattern{Host: "pastebin.com", Path: "/*"}, Kind: router.KindDecklist, Adapter: pastebin},
		{Pattern: router.Pattern{Host: "pastebin.com", Path: "/raw/*"}, Kind: router.KindDecklist, Adapter: pastebin},
	}
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("register %s: %w", r.Adapter.Name(), err)
		}
	}
	return nil
}

// NewRegistry returns a registry with every site adapter registered.
func NewRegistry() (*router.Registry, error) {
	reg := router.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func jsonRequest(rawURL string) deck.FetchRequest {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	return deck.FetchRequest{URL: rawURL, Headers: headers}
}

// documentText returns the text payload of doc. Browser-rendered API and
// text responses arrive wrapped in HTML, so the first <pre> block (or the
// body text) is used.
func documentText(adapter string, doc deck.Document) ([]byte, error) {
	body := bytes.TrimSpace(doc.Body)
	if len(body) == 0 || body[0] != '<' {
		return body, nil
	}
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, deck.NewParseError(adapter, doc.URL, "read html wrapper", err)
	}
	text := page.Find("pre").First().Text()
	if strings.TrimSpace(text) == "" {
		text = page.Find("body").Text()
	}
	return []byte(strings.TrimSpace(text)), nil
}

func decodeJSON(adapter string, doc deck.Document, out any) error {
	body, err := documentText(adapter, doc)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return deck.NewParseError(adapter, doc.URL, "empty response", nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return deck.NewParseError(adapter, doc.URL, "decode json", err)
	}
	return nil
}

func htmlDocument(adapter string, doc deck.Document) (*goquery.Document, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, deck.NewParseError(adapter, doc.URL, "read html", err)
	}
	return page, nil
}

// pathSegments splits a URL path into non-empty segments.
func pathSegments(u *url.URL) []string {
	var out []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// segmentAfter returns the path segment following prefix, e.g. the deck ID
// in /decks/{id}.
func segmentAfter(u *url.URL, prefix string) (string, bool) {
	segs := pathSegments(u)
	for i := 0; i+1 < len(segs); i++ {
		if strings.EqualFold(segs[i], prefix) {
			return segs[i+1], true
		}
	}
	return "", false
}

// childLinks resolves hrefs against base and keeps those accept allows,
// deduplicated in document order.
func childLinks(base *url.URL, hrefs []string, accept func(*url.URL) bool) []string {
	seen := make(map[string]struct{}, len(hrefs))
	var out []string
	for _, href := range hrefs {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || href == "" {
			continue
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if accept != nil && !accept(abs) {
			continue
		}
		s := abs.String()
		if _, dup := seen[s]; dup || s == base.String() {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
