// Package normalize turns adapter output into canonical decks.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Normalizer resolves card names and builds Decks. It is safe for
// concurrent use when its resolver is.
type Normalizer struct {
	resolver deck.CardResolver
	logger   *zap.Logger
}

// New returns a Normalizer over resolver.
func New(resolver deck.CardResolver, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{resolver: resolver, logger: logger.Named("normalize")}
}

// Normalize builds a Deck from raw. Problems with individual lines become
// warnings on the deck. The only errors are a cancelled context and a list
// with no usable entries, which wraps deck.ErrEmptyDecklist.
func (n *Normalizer) Normalize(ctx context.Context, raw deck.RawDecklist) (deck.Deck, error) {
	d := deck.Deck{
		URL:    raw.URL,
		Author: strings.TrimSpace(raw.Author),
		Source: source(raw),
	}

	for _, e := range raw.Entries {
		if err := ctx.Err(); err != nil {
			return deck.Deck{}, fmt.Errorf("normalize: %w", err)
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			d.Warn(deck.WarningUnparsedLine, "", fmt.Sprintf("entry with quantity %d has no card name", e.Quantity))
			continue
		}
		if e.Quantity <= 0 {
			d.Warn(deck.WarningInvalidQuantity, name, fmt.Sprintf("quantity %d is not positive", e.Quantity))
			continue
		}
		zone, err := deck.ParseZone(e.Zone)
		if err != nil {
			d.Warn(deck.WarningUnknownZone, name, fmt.Sprintf("zone %q is not supported", e.Zone))
			continue
		}

		card, err := n.resolve(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return deck.Deck{}, fmt.Errorf("normalize: %w", ctx.Err())
			}
			d.Warn(deck.WarningCardNotFound, name, err.Error())
		}
		if set := strings.ToUpper(strings.TrimSpace(e.Set)); set != "" {
			card.Set = set
			card.CollectorNumber = strings.TrimSpace(e.CollectorNumber)
		}
		if err := d.Add(card, e.Quantity, zone); err != nil {
			d.Warn(deck.WarningInvalidQuantity, name, err.Error())
		}
	}
	for _, line := range raw.Skipped {
		d.Warn(deck.WarningUnparsedLine, line, "")
	}

	if len(d.Entries) == 0 {
		return d, fmt.Errorf("normalize %s: %w", firstNonEmpty(raw.URL, raw.Title, "text"), deck.ErrEmptyDecklist)
	}

	d.Format = deck.ParseFormat(raw.FormatHint)
	if d.Format == deck.FormatUndefined {
		d.Format = deck.InferFormat(raw.Title, raw.Description)
	}
	d.Name = strings.TrimSpace(raw.Title)
	if d.Name == "" {
		d.Name = SynthesizeName(d)
	}
	return d, nil
}

// resolve returns the card for name. A miss returns a card carrying the
// raw name alongside the error.
func (n *Normalizer) resolve(ctx context.Context, name string) (deck.Card, error) {
	if n.resolver == nil {
		return deck.Card{Name: name}, deck.ErrCardNotFound
	}
	card, stage, err := n.resolver.Resolve(ctx, name)
	switch {
	case err == nil:
		if stage == deck.StageFuzzy || stage == deck.StageAlias {
			n.logger.Debug("card name rewritten",
				zap.String("name", name),
				zap.String("card", card.Name),
				zap.String("stage", string(stage)),
			)
		}
		return card, nil
	case errors.Is(err, deck.ErrCardNotFound):
		if card.Name == "" {
			card = deck.Card{Name: name}
		}
		return card, deck.ErrCardNotFound
	default:
		n.logger.Warn("card resolution failed", zap.String("name", name), zap.Error(err))
		return deck.Card{Name: name}, err
	}
}

// source is the registrable domain of the deck's page, or the adapter's
// explicit source label.
func source(raw deck.RawDecklist) string {
	if raw.Source != "" {
		return raw.Source
	}
	if raw.URL == "" {
		return ""
	}
	u, err := url.Parse(raw.URL)
	if err != nil {
		return ""
	}
	return Domain(u.Hostname())
}

// Domain reduces host to its registrable domain (eTLD+1), e.g.
// www.mtggoldfish.com becomes mtggoldfish.com.
func Domain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
