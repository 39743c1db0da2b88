package adapters

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/deckfile"
)

var goldfishFormat = regexp.MustCompile(`(?i)^\s*format:\s*(.+?)\s*$`)

// MTGGoldfishDeck reads deck and archetype pages. The list itself sits in
// the hidden deck_input[deck] field in plain text form.
type MTGGoldfishDeck struct{}

// Name implements deck.Adapter.
func (MTGGoldfishDeck) Name() string { return "mtggoldfish" }

// Request implements deck.Adapter.
func (MTGGoldfishDeck) Request(target *url.URL) (deck.FetchRequest, error) {
	return deck.FetchRequest{URL: target.String()}, nil
}

// Parse implements deck.Adapter.
func (a MTGGoldfishDeck) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	page, err := htmlDocument(a.Name(), doc)
	if err != nil {
		return deck.Parsed{}, err
	}

	list, ok := page.Find(`input[name="deck_input[deck]"]`).First().Attr("value")
	if !ok || strings.TrimSpace(list) == "" {
		return deck.Parsed{}, deck.NewParseError(a.Name(), doc.URL, "deck_input field missing", deck.ErrEmptyDecklist)
	}
	raw := deckfile.ParseText(list)
	if len(raw.Entries) == 0 {
		return deck.Parsed{}, deck.NewParseError(a.Name(), doc.URL, "deck_input field has no cards", deck.ErrEmptyDecklist)
	}

	title := page.Find("h1.title").First()
	author := title.Find("span.author")
	raw.Author = strings.TrimSpace(strings.TrimPrefix(cleanText(author.Text()), "by "))
	author.Remove()
	raw.Title = firstNonEmpty(cleanText(title.Text()), raw.Title)

	var info []string
	page.Find(".deck-container-information").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "#text" {
			return
		}
		line := cleanText(s.Text())
		if line == "" {
			return
		}
		info = append(info, line)
		if m := goldfishFormat.FindStringSubmatch(line); m != nil && raw.FormatHint == "" {
			raw.FormatHint = m[1]
		}
	})
	raw.Description = strings.Join(info, "\n")
	raw.URL = target.String()
	return deck.Parsed{Decklists: []deck.RawDecklist{raw}}, nil
}

// MTGGoldfishTournament lists the decks linked from a tournament page.
type MTGGoldfishTournament struct{}

// Name implements deck.Adapter.
func (MTGGoldfishTournament) Name() string { return "mtggoldfish-tournament" }

// Request implements deck.Adapter.
func (MTGGoldfishTournament) Request(target *url.URL) (deck.FetchRequest, error) {
	return deck.FetchRequest{URL: target.String()}, nil
}

// Parse implements deck.Adapter.
func (a MTGGoldfishTournament) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	page, err := htmlDocument(a.Name(), doc)
	if err != nil {
		return deck.Parsed{}, err
	}
	var hrefs []string
	page.Find(`a[href^="/deck/"]`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	children := childLinks(target, hrefs, func(u *url.URL) bool {
		segs := pathSegments(u)
		return len(segs) == 2 && segs[0] == "deck"
	})
	return deck.Parsed{Children: children}, nil
}
