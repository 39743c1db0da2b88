package router

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Pattern is a host plus path template. Path segments are literals, "*"
// for exactly one segment, or a trailing "**" for zero or more.
type Pattern struct {
	Host  string
	Path  string
	Query []string
}

// ErrInvalidPattern is wrapped by every pattern validation failure.
var ErrInvalidPattern = errors.New("invalid pattern")

type compiledPattern struct {
	host     string
	segments []string
	query    []string
	trailing bool
}

func (p Pattern) String() string {
	s := p.Host + p.Path
	if len(p.Query) > 0 {
		s += "?" + strings.Join(p.Query, "&")
	}
	return s
}

func compile(p Pattern) (compiledPattern, error) {
	host := normalizeHost(p.Host)
	if host == "" {
		return compiledPattern{}, fmt.Errorf("%w: empty host in %q", ErrInvalidPattern, p.String())
	}
	segments := splitPath(strings.ToLower(p.Path))
	cp := compiledPattern{host: host}
	for i, seg := range segments {
		if seg == "**" {
			if i != len(segments)-1 {
				return compiledPattern{}, fmt.Errorf("%w: %q must end with **", ErrInvalidPattern, p.String())
			}
			cp.trailing = true
			continue
		}
		cp.segments = append(cp.segments, seg)
	}
	for _, key := range p.Query {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return compiledPattern{}, fmt.Errorf("%w: empty query key in %q", ErrInvalidPattern, p.String())
		}
		cp.query = append(cp.query, key)
	}
	sort.Strings(cp.query)
	return cp, nil
}

func (cp compiledPattern) matches(host string, segments []string, query url.Values) bool {
	if host != cp.host && !strings.HasSuffix(host, "."+cp.host) {
		return false
	}
	if len(segments) < len(cp.segments) {
		return false
	}
	if len(segments) > len(cp.segments) && !cp.trailing {
		return false
	}
	for i, want := range cp.segments {
		if want != "*" && want != segments[i] {
			return false
		}
	}
	for _, key := range cp.query {
		if query.Get(key) == "" {
			return false
		}
	}
	return true
}

// specificity orders candidate patterns. Larger is more specific.
type specificity struct {
	literals  int
	wildcards int
	trailing  bool
	queryKeys int
	hostDepth int
}

func (cp compiledPattern) specificity() specificity {
	s := specificity{
		trailing:  cp.trailing,
		queryKeys: len(cp.query),
		hostDepth: strings.Count(cp.host, "."),
	}
	for _, seg := range cp.segments {
		if seg == "*" {
			s.wildcards++
		} else {
			s.literals++
		}
	}
	return s
}

// moreSpecific reports whether a outranks b.
func (a specificity) moreSpecific(b specificity) bool {
	if a.literals != b.literals {
		return a.literals > b.literals
	}
	if a.wildcards != b.wildcards {
		return a.wildcards < b.wildcards
	}
	if a.trailing != b.trailing {
		return !a.trailing
	}
	if a.queryKeys != b.queryKeys {
		return a.queryKeys > b.queryKeys
	}
	return a.hostDepth > b.hostDepth
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeHost lowercases and drops the www. and m. prefixes.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	for _, prefix := range []string{"www.", "m."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}
