// Package memory keeps archived documents and harvested decks in process
// memory. It backs development runs and tests.
package memory
