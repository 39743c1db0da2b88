// Package cards is the card database: an in-memory index built once at
// startup, an optional SQLite cache, the Scryfall remote lookup, and the
// alias and fuzzy fallbacks. Resolver runs them in that order.
package cards
