package deckfile

import (
	"bytes"
	"encoding/json"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

func TestParseTextSimpleList(t *testing.T) {
	t.Parallel()

	raw := ParseText("4 Lightning Bolt\n2 Mountain")
	want := []deck.RawEntry{
		{Name: "Lightning Bolt", Quantity: 4, Zone: "main"},
		{Name: "Mountain", Quantity: 2, Zone: "main"},
	}
	if diff := cmp.Diff(want, raw.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, raw.Skipped)
}

func TestParseTextArenaExport(t *testing.T) {
	t.Parallel()

	text := "About\nName Mono Red Burn\n\nCommander\n1 Krenko, Mob Boss (DDT) 52\n\n" +
		"Deck\n4 Lightning Bolt (M11) 149\n4x Goblin Guide [ZEN]\n20 Mountain *F*\n\n" +
		"Sideboard\n2 Pyroblast\n\nMaybeboard\n1 Fireblast\n"
	raw := ParseText(text)

	assert.Equal(t, "Mono Red Burn", raw.Title)
	want := []deck.RawEntry{
		{Name: "Krenko, Mob Boss", Quantity: 1, Zone: "commander", Set: "DDT", CollectorNumber: "52"},
		{Name: "Lightning Bolt", Quantity: 4, Zone: "main", Set: "M11", CollectorNumber: "149"},
		{Name: "Goblin Guide", Quantity: 4, Zone: "main", Set: "ZEN"},
		{Name: "Mountain", Quantity: 20, Zone: "main"},
		{Name: "Pyroblast", Quantity: 2, Zone: "sideboard"},
		{Name: "Fireblast", Quantity: 1, Zone: "maybeboard"},
	}
	if diff := cmp.Diff(want, raw.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTextBlankLineStartsSideboard(t *testing.T) {
	t.Parallel()

	raw := ParseText("// comment\n4 Lightning Bolt\n\n\n3 Smash to Smithereens\n1 Pyroblast\n")
	require.Len(t, raw.Entries, 3)
	assert.Equal(t, "main", raw.Entries[0].Zone)
	assert.Equal(t, "sideboard", raw.Entries[1].Zone)
	assert.Equal(t, "sideboard", raw.Entries[2].Zone)
}

func TestParseTextLeadingBlankLinesStayMainboard(t *testing.T) {
	t.Parallel()

	raw := ParseText("\n\n4 Lightning Bolt\n")
	require.Len(t, raw.Entries, 1)
	assert.Equal(t, "main", raw.Entries[0].Zone)
}

func TestParseTextSBPrefixAndGroups(t *testing.T) {
	t.Parallel()

	raw := ParseText("Creatures (4)\n4 Goblin Guide\nLands:\n20 Mountain\nSB: 2 Pyroblast\nsome words here\n0 Shock\n")
	want := []deck.RawEntry{
		{Name: "Goblin Guide", Quantity: 4, Zone: "main"},
		{Name: "Mountain", Quantity: 20, Zone: "main"},
		{Name: "Pyroblast", Quantity: 2, Zone: "sideboard"},
		{Name: "Shock", Quantity: 0, Zone: "main"},
	}
	if diff := cmp.Diff(want, raw.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"some words here"}, raw.Skipped)
}

func sampleDeck() deck.Deck {
	d := deck.Deck{Name: "Krenko Tokens", Format: deck.FormatCommander}
	_ = d.Add(deck.Card{Name: "Krenko, Mob Boss", Set: "DDT", CollectorNumber: "52"}, 1, deck.ZoneCommander)
	_ = d.Add(deck.Card{Name: "Lightning Bolt", Set: "M11", CollectorNumber: "149"}, 1, deck.ZoneMainboard)
	_ = d.Add(deck.Card{Name: "Fire // Ice"}, 1, deck.ZoneMainboard)
	_ = d.Add(deck.Card{Name: "Mountain"}, 30, deck.ZoneMainboard)
	_ = d.Add(deck.Card{Name: "Pyroblast"}, 1, deck.ZoneSideboard)
	return d
}

// rebuild resolves raw entries by name, standing in for the normalizer.
func rebuild(t *testing.T, raw deck.RawDecklist) deck.Deck {
	t.Helper()
	d := deck.Deck{Name: raw.Title}
	for _, e := range raw.Entries {
		zone, err := deck.ParseZone(e.Zone)
		require.NoError(t, err)
		require.NoError(t, d.Add(deck.Card{Name: e.Name}, e.Quantity, zone))
	}
	return d
}

func TestArenaRoundTrip(t *testing.T) {
	t.Parallel()

	d := sampleDeck()
	var buf bytes.Buffer
	require.NoError(t, WriteArena(&buf, d))

	back := rebuild(t, ParseText(buf.String()))
	assert.Equal(t, d.Name, back.Name)
	if diff := cmp.Diff(d.Multiset(), back.Multiset()); diff != "" {
		t.Fatalf("multiset mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, buf.String(), "1 Lightning Bolt (M11) 149\n")
}

func TestForgeRoundTrip(t *testing.T) {
	t.Parallel()

	d := sampleDeck()
	var buf bytes.Buffer
	require.NoError(t, WriteForge(&buf, d))
	assert.Contains(t, buf.String(), "[metadata]\nName=Krenko Tokens\n[Commander]\n1 Krenko, Mob Boss|DDT\n")

	require.True(t, IsForge(buf.String()))
	raw := Parse(buf.String())
	assert.Equal(t, "DDT", raw.Entries[0].Set)
	back := rebuild(t, raw)
	assert.Equal(t, d.Name, back.Name)
	if diff := cmp.Diff(d.Multiset(), back.Multiset()); diff != "" {
		t.Fatalf("multiset mismatch (-want +got):\n%s", diff)
	}
}

func TestPlainRoundTrip(t *testing.T) {
	t.Parallel()

	d := deck.Deck{}
	_ = d.Add(deck.Card{Name: "Lightning Bolt"}, 4, deck.ZoneMainboard)
	_ = d.Add(deck.Card{Name: "Pyroblast"}, 2, deck.ZoneSideboard)

	var buf bytes.Buffer
	require.NoError(t, WritePlain(&buf, d))
	assert.Equal(t, "4 Lightning Bolt\n\n2 Pyroblast\n", buf.String())

	back := rebuild(t, ParseText(buf.String()))
	if diff := cmp.Diff(d.Multiset(), back.Multiset()); diff != "" {
		t.Fatalf("multiset mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	withCommander := sampleDeck()
	require.NoError(t, WritePlain(&buf, withCommander))
	back = rebuild(t, ParseText(buf.String()))
	if diff := cmp.Diff(withCommander.Multiset(), back.Multiset()); diff != "" {
		t.Fatalf("multiset mismatch (-want +got):\n%s", diff)
	}
}

func TestPlainSideboardOnlyKeepsZone(t *testing.T) {
	t.Parallel()

	d := deck.Deck{}
	_ = d.Add(deck.Card{Name: "Pyroblast"}, 2, deck.ZoneSideboard)

	var buf bytes.Buffer
	require.NoError(t, WritePlain(&buf, d))
	assert.Equal(t, "Sideboard\n2 Pyroblast\n", buf.String())

	back := rebuild(t, ParseText(buf.String()))
	if diff := cmp.Diff(d.Multiset(), back.Multiset()); diff != "" {
		t.Fatalf("multiset mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSONAndQR(t *testing.T) {
	t.Parallel()

	d := sampleDeck()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, d, FormatJSON))
	var decoded deck.Deck
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, d.Fingerprint(), decoded.Fingerprint())

	buf.Reset()
	require.NoError(t, Write(&buf, d, FormatQR))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, QRSize, img.Bounds().Dx())
}

func TestParseFormatAndExtension(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat(" Forge ")
	require.NoError(t, err)
	assert.Equal(t, FormatForge, f)
	assert.Equal(t, ".dck", f.Extension())
	assert.Equal(t, ".png", FormatQR.Extension())
	assert.Equal(t, ".txt", FormatArena.Extension())

	_, err = ParseFormat("mtgo")
	require.Error(t, err)
	require.Error(t, Write(&bytes.Buffer{}, deck.Deck{}, Format("mtgo")))
}
