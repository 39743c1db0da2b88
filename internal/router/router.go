// Package router classifies harvest inputs and dispatches URLs to the site
// adapter registered for them.
package router

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/unshorten"
)

// Resolver expands shortened URLs.
type Resolver interface {
	Resolve(ctx context.Context, target *url.URL) (*url.URL, error)
}

// Route is the classification of one input.
type Route struct {
	Kind  Kind
	Input string
	// URL is set for every kind except KindPlainText.
	URL *url.URL
	// Key is the canonical form used for visited sets.
	Key string
	// Text holds the trimmed input for KindPlainText.
	Text         string
	Registration *Registration
}

// Router classifies inputs against a Registry.
type Router struct {
	registry *Registry
	resolver Resolver
	logger   *zap.Logger
}

// New builds a Router. resolver may be nil, in which case shortened links
// are classified as they are.
func New(registry *Registry, resolver Resolver, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		resolver: resolver,
		logger:   logger.Named("router"),
	}
}

// Registry returns the underlying registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

var hostPathPattern = regexp.MustCompile(`(?i)^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]*[a-z0-9])?)*\.[a-z]{2,}(?::\d+)?(?:/\S*)?$`)

// Classify decides what an input is. An input that matches no
// registration yields KindUnsupported, not an error; errors are returned
// only when ctx is done.
func (r *Router) Classify(ctx context.Context, input string) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, fmt.Errorf("classify: %w", err)
	}
	trimmed := strings.TrimSpace(input)
	target, ok := parseURLInput(trimmed)
	if !ok {
		return Route{Kind: KindPlainText, Input: input, Text: trimmed}, nil
	}

	if unwrapped, ok := unshorten.Unwrap(target); ok {
		target = unwrapped
	}
	if r.resolver != nil {
		resolved, err := r.resolver.Resolve(ctx, target)
		switch {
		case err != nil && ctx.Err() != nil:
			return Route{}, fmt.Errorf("classify: %w", ctx.Err())
		case err != nil:
			r.logger.Warn("unshorten failed, classifying original", zap.String("url", target.String()), zap.Error(err))
		default:
			target = resolved
		}
	}

	target = cleanURL(target)
	route := Route{Kind: KindUnsupported, Input: input, URL: target, Key: CanonicalKey(target)}
	matches := r.registry.Match(target)
	if len(matches) == 0 {
		return route, nil
	}
	best := matches[0]
	route.Kind = best.Kind
	route.Registration = &best
	return route, nil
}

// parseURLInput accepts http(s) URLs and scheme-less host/path inputs.
func parseURLInput(s string) (*url.URL, bool) {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return nil, false
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "www."), hostPathPattern.MatchString(s):
		s = "https://" + s
	default:
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// cleanURL lowercases scheme and host and drops the fragment.
func cleanURL(u *url.URL) *url.URL {
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	out.Host = strings.ToLower(out.Host)
	out.Fragment = ""
	out.RawFragment = ""
	return &out
}

// CanonicalKey normalizes u for deduplication: no www./m. prefix, no
// trailing slash, sorted query. Path case is kept since deck IDs are
// case-sensitive on some sites.
func CanonicalKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	path := "/" + strings.Join(splitPath(u.EscapedPath()), "/")
	key := normalizeHost(u.Hostname()) + path
	if q := lowerKeys(u.Query()).Encode(); q != "" {
		key += "?" + q
	}
	return key
}
