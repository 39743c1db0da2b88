package cards

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// DefaultScryfallURL is the public Scryfall API.
const DefaultScryfallURL = "https://api.scryfall.com"

// Waiter paces requests to one host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Scryfall looks cards up on the Scryfall API: exact English name first,
// then a multilingual search for printed foreign names.
type Scryfall struct {
	client *resty.Client
	waiter Waiter
}

// ScryfallConfig controls the remote client.
type ScryfallConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// NewScryfall builds a client. waiter may be nil.
func NewScryfall(cfg ScryfallConfig, waiter Waiter) *Scryfall {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultScryfallURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "deck-harvester/1.0"
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", "application/json")
	return &Scryfall{client: client, waiter: waiter}
}

type searchResult struct {
	Data []scryfallCard `json:"data"`
}

// Lookup returns the card for name, or deck.ErrCardNotFound.
func (s *Scryfall) Lookup(ctx context.Context, name string) (deck.Card, error) {
	var card scryfallCard
	found, err := s.get(ctx, "/cards/named", map[string]string{"exact": name}, &card)
	if err != nil {
		return deck.Card{}, err
	}
	if found && card.Name != "" {
		return card.toCard(), nil
	}

	var result searchResult
	found, err = s.get(ctx, "/cards/search", map[string]string{
		"q":                    fmt.Sprintf("%q lang:any", name),
		"include_multilingual": "true",
		"unique":               "cards",
	}, &result)
	if err != nil {
		return deck.Card{}, err
	}
	if !found || len(result.Data) == 0 {
		return deck.Card{}, fmt.Errorf("%w: %q", deck.ErrCardNotFound, name)
	}
	return result.Data[0].toCard(), nil
}

// get issues one request. found is false on 404, which Scryfall uses for
// "no such card" and "no search results".
func (s *Scryfall) get(ctx context.Context, path string, params map[string]string, out any) (bool, error) {
	if s.waiter != nil {
		if err := s.waiter.Wait(ctx, s.client.BaseURL+path); err != nil {
			return false, fmt.Errorf("scryfall wait: %w", err)
		}
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return false, fmt.Errorf("scryfall %s: %w", path, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.IsError():
		return false, &deck.FetchError{URL: resp.Request.URL, StatusCode: resp.StatusCode(), Attempts: 1}
	}
	return true, nil
}
