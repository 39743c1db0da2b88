// Package detector decides when to promote fetches to the headless browser.
package detector

import (
	"bytes"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	// MinTextLength is the visible text length below which a scripted page
	// is treated as an unrendered shell.
	MinTextLength int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minText int) *Heuristic {
	if minText <= 0 {
		minText = 200
	}
	return &Heuristic{MinTextLength: minText}
}

var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
	[]byte("/cdn-cgi/challenge-platform/"),
}

// ShouldPromote decides whether a headless fetch is required. Only
// successful HTML documents are considered.
func (h *Heuristic) ShouldPromote(doc deck.Document) bool {
	if doc.StatusCode != http.StatusOK || doc.Headless {
		return false
	}
	if !isHTML(doc.ContentType) {
		return false
	}
	body := doc.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return h.scriptedShell(body)
}

// scriptedShell reports a page that carries scripts but almost no text
// outside them.
func (h *Heuristic) scriptedShell(body []byte) bool {
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	scripts := parsed.Find("script")
	if scripts.Length() == 0 {
		return false
	}
	scripts.Remove()
	parsed.Find("style, noscript, template").Remove()
	text := strings.Join(strings.Fields(parsed.Find("body").Text()), " ")
	return len(text) < h.MinTextLength
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
