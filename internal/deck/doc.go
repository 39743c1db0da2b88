// Package deck defines the domain types shared across the harvester: decks,
// cards, adapter output, fetched documents, and the error taxonomy.
package deck
