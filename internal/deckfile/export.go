package deckfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Format names an export encoding.
type Format string

// Export formats.
const (
	FormatArena Format = "arena"
	FormatForge Format = "forge"
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
	FormatQR    Format = "qr"
)

// Formats lists every export format.
var Formats = []Format{FormatArena, FormatForge, FormatPlain, FormatJSON, FormatQR}

// ParseFormat validates an export format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", name)
}

// Extension returns the file extension, with dot, for f.
func (f Format) Extension() string {
	switch f {
	case FormatForge:
		return ".dck"
	case FormatJSON:
		return ".json"
	case FormatQR:
		return ".png"
	default:
		return ".txt"
	}
}

// QRSize is the edge length in pixels of QR exports.
const QRSize = 512

// Write encodes d in format f.
func Write(w io.Writer, d deck.Deck, f Format) error {
	switch f {
	case FormatArena:
		return WriteArena(w, d)
	case FormatForge:
		return WriteForge(w, d)
	case FormatPlain:
		return WritePlain(w, d)
	case FormatJSON:
		return WriteJSON(w, d)
	case FormatQR:
		return WriteQR(w, d, QRSize)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

var arenaHeaders = map[deck.Zone]string{
	deck.ZoneCommander: "Commander",
	deck.ZoneMainboard: "Deck",
	deck.ZoneSideboard: "Sideboard",
}

// WriteArena writes the MTG Arena import format.
func WriteArena(w io.Writer, d deck.Deck) error {
	bw := bufio.NewWriter(w)
	first := true
	if d.Name != "" {
		fmt.Fprintf(bw, "About\nName %s\n", d.Name)
		first = false
	}
	for _, zone := range deck.Zones {
		entries := d.Zone(zone)
		if len(entries) == 0 {
			continue
		}
		if !first {
			bw.WriteString("\n")
		}
		first = false
		bw.WriteString(arenaHeaders[zone] + "\n")
		for _, e := range entries {
			bw.WriteString(arenaLine(e) + "\n")
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write arena: %w", err)
	}
	return nil
}

func arenaLine(e deck.Entry) string {
	line := fmt.Sprintf("%d %s", e.Quantity, e.Card.Name)
	if e.Card.Set != "" {
		line += fmt.Sprintf(" (%s)", strings.ToUpper(e.Card.Set))
		if e.Card.CollectorNumber != "" {
			line += " " + e.Card.CollectorNumber
		}
	}
	return line
}

var forgeSections = map[deck.Zone]string{
	deck.ZoneCommander: "[Commander]",
	deck.ZoneMainboard: "[Main]",
	deck.ZoneSideboard: "[Sideboard]",
}

// WriteForge writes a Forge .dck file.
func WriteForge(w io.Writer, d deck.Deck) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("[metadata]\n")
	name := d.Name
	if name == "" {
		name = "Untitled"
	}
	fmt.Fprintf(bw, "Name=%s\n", name)
	for _, zone := range deck.Zones {
		entries := d.Zone(zone)
		if len(entries) == 0 {
			continue
		}
		bw.WriteString(forgeSections[zone] + "\n")
		for _, e := range entries {
			line := fmt.Sprintf("%d %s", e.Quantity, e.Card.Name)
			if e.Card.Set != "" {
				line += "|" + strings.ToUpper(e.Card.Set)
			}
			bw.WriteString(line + "\n")
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write forge: %w", err)
	}
	return nil
}

// WritePlain writes "<qty> <name>" lines. Mainboard and sideboard are
// separated by a blank line. Decks with commanders or without mainboard
// cards get section headers, since a bare list reads back as mainboard.
func WritePlain(w io.Writer, d deck.Deck) error {
	bw := bufio.NewWriter(w)
	headers := len(d.Zone(deck.ZoneCommander)) > 0 || len(d.Zone(deck.ZoneMainboard)) == 0
	first := true
	for _, zone := range deck.Zones {
		entries := d.Zone(zone)
		if len(entries) == 0 {
			continue
		}
		if !first {
			bw.WriteString("\n")
		}
		first = false
		if headers {
			bw.WriteString(arenaHeaders[zone] + "\n")
		}
		for _, e := range entries {
			fmt.Fprintf(bw, "%d %s\n", e.Quantity, e.Card.Name)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write plain: %w", err)
	}
	return nil
}

// WriteJSON writes the deck as indented JSON.
func WriteJSON(w io.Writer, d deck.Deck) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteQR writes a PNG QR code holding the Arena export of d.
func WriteQR(w io.Writer, d deck.Deck, size int) error {
	var buf bytes.Buffer
	if err := WriteArena(&buf, d); err != nil {
		return err
	}
	png, err := qrcode.Encode(buf.String(), qrcode.Low, size)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}
	if _, err := w.Write(png); err != nil {
		return fmt.Errorf("write qr: %w", err)
	}
	return nil
}
