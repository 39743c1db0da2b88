// Package harvest runs inputs through the router, the site adapters, and the
// normalizer. A batch visits each input in order, follows container pages to
// a bounded depth, dedupes decks by fingerprint, and hands new decks to the
// configured archive, store, and publisher.
package harvest
