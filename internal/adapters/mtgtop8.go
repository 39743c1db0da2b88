package adapters

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// mtgtop8Formats maps the f query parameter onto format labels.
var mtgtop8Formats = map[string]string{
	"ST":   "standard",
	"PI":   "pioneer",
	"MO":   "modern",
	"LE":   "legacy",
	"VI":   "vintage",
	"PAU":  "pauper",
	"EDH":  "commander",
	"CEDH": "commander",
	"DC":   "duel commander",
	"PREM": "premodern",
	"EXP":  "explorer",
	"HI":   "historic",
	"ALCH": "alchemy",
	"LI":   "limited",
}

var (
	top8LinePattern = regexp.MustCompile(`^(\d+)\s+(.+)$`)
	top8RankPrefix  = regexp.MustCompile(`^#?\d+(?:-\d+)?\s+`)
)

// MTGTop8Deck reads one deck from an event page with a d parameter.
type MTGTop8Deck struct{}

// Name implements deck.Adapter.
func (MTGTop8Deck) Name() string { return "mtgtop8" }

// Request implements deck.Adapter.
func (MTGTop8Deck) Request(target *url.URL) (deck.FetchRequest, error) {
	return deck.FetchRequest{URL: target.String()}, nil
}

// Parse implements deck.Adapter.
func (a MTGTop8Deck) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	page, err := htmlDocument(a.Name(), doc)
	if err != nil {
		return deck.Parsed{}, err
	}
	raw, ok := readTop8Deck(page, target)
	if !ok {
		return deck.Parsed{}, deck.NewParseError(a.Name(), doc.URL, "no deck_line rows", deck.ErrEmptyDecklist)
	}
	return deck.Parsed{Decklists: []deck.RawDecklist{raw}}, nil
}

// MTGTop8Event lists the decks of an event. The page also shows the
// winning list, which is returned as an embedded decklist.
type MTGTop8Event struct{}

// Name implements deck.Adapter.
func (MTGTop8Event) Name() string { return "mtgtop8-event" }

// Request implements deck.Adapter.
func (MTGTop8Event) Request(target *url.URL) (deck.FetchRequest, error) {
	return deck.FetchRequest{URL: target.String()}, nil
}

// Parse implements deck.Adapter.
func (a MTGTop8Event) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	page, err := htmlDocument(a.Name(), doc)
	if err != nil {
		return deck.Parsed{}, err
	}
	var hrefs []string
	page.Find(`a[href*="d="]`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	event := target.Query().Get("e")
	parsed := deck.Parsed{Children: childLinks(target, hrefs, func(u *url.URL) bool {
		q := u.Query()
		return strings.EqualFold(strings.Trim(u.Path, "/"), "event") &&
			q.Get("e") == event && q.Get("d") != ""
	})}
	if raw, ok := readTop8Deck(page, target); ok {
		parsed.Decklists = []deck.RawDecklist{raw}
	}
	if len(parsed.Children) == 0 && len(parsed.Decklists) == 0 {
		return deck.Parsed{}, deck.NewParseError(a.Name(), doc.URL, "no deck links", nil)
	}
	return parsed, nil
}

func readTop8Deck(page *goquery.Document, target *url.URL) (deck.RawDecklist, bool) {
	raw := deck.RawDecklist{
		URL:        target.String(),
		FormatHint: mtgtop8Formats[strings.ToUpper(target.Query().Get("f"))],
	}

	zone := "main"
	page.Find("div.O14, div.deck_line").Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if s.HasClass("O14") {
			upper := strings.ToUpper(text)
			switch {
			case strings.Contains(upper, "SIDEBOARD"):
				zone = "sideboard"
			case strings.Contains(upper, "COMMANDER"):
				zone = "commander"
			}
			return
		}
		m := top8LinePattern.FindStringSubmatch(text)
		if m == nil {
			raw.Skipped = append(raw.Skipped, text)
			return
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			raw.Skipped = append(raw.Skipped, text)
			return
		}
		entryZone := zone
		if id, _ := s.Attr("id"); strings.HasPrefix(id, "sb") {
			entryZone = "sideboard"
		}
		raw.Entries = append(raw.Entries, deck.RawEntry{Name: m[2], Quantity: qty, Zone: entryZone})
	})
	if len(raw.Entries) == 0 {
		return deck.RawDecklist{}, false
	}

	titles := page.Find("div.event_title")
	titles.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		player := s.Find(".player_big")
		if player.Length() == 0 {
			if raw.Description == "" {
				raw.Description = cleanText(s.Text())
			}
			return true
		}
		raw.Author = cleanText(player.Text())
		player.Remove()
		title := strings.TrimSuffix(cleanText(s.Text()), "-")
		raw.Title = strings.TrimSpace(top8RankPrefix.ReplaceAllString(title, ""))
		return false
	})
	return raw, true
}
