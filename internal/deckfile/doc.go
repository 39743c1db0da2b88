// Package deckfile reads and writes deck list files: pasted text and Arena
// exports, Forge .dck files, plain lists, JSON, and QR codes of the Arena
// text.
package deckfile
