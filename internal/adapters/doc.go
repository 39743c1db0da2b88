// Package adapters holds one shallow parser per supported deck site. Each
// adapter knows how to turn a routed URL into a fetch request and how to
// read the fetched document into raw decklists or child URLs.
package adapters
