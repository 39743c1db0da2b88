package deck

import (
	"fmt"
	"strings"
)

// Zone is the part of a deck a card belongs to.
type Zone string

// Supported zones.
const (
	ZoneMainboard Zone = "mainboard"
	ZoneSideboard Zone = "sideboard"
	ZoneCommander Zone = "commander"
)

// Zones lists every zone in export order.
var Zones = []Zone{ZoneCommander, ZoneMainboard, ZoneSideboard}

var zoneLabels = map[string]Zone{
	"":           ZoneMainboard,
	"main":       ZoneMainboard,
	"mainboard":  ZoneMainboard,
	"maindeck":   ZoneMainboard,
	"main deck":  ZoneMainboard,
	"deck":       ZoneMainboard,
	"md":         ZoneMainboard,
	"side":       ZoneSideboard,
	"sideboard":  ZoneSideboard,
	"sb":         ZoneSideboard,
	"companion":  ZoneSideboard,
	"companions": ZoneSideboard,
	"commander":  ZoneCommander,
	"commanders": ZoneCommander,
	"cmdr":       ZoneCommander,
	"cz":         ZoneCommander,
}

// ParseZone maps an adapter's zone label onto a Zone.
func ParseZone(label string) (Zone, error) {
	key := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":")))
	if z, ok := zoneLabels[key]; ok {
		return z, nil
	}
	return "", fmt.Errorf("unknown zone label %q", label)
}
