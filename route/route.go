// Package route classifies the embedded surface's displayed path against
// the known GeoGuessr route prefixes.
package route

import (
	"strings"
)

// Kind discriminates what a sampled path means for presence.
type Kind int

const (
	// KindMenu is a menu-like page rendered from a static label.
	KindMenu Kind = iota
	// KindLive is a multiplayer game served by the live game server.
	KindLive
	// KindOffline is a classic single-player game.
	KindOffline
	// KindMapBrowse is a map detail page.
	KindMapBrowse
)

// Classification is the per-tick result of matching a path against the
// route table. Only the fields relevant to the matched kind are set.
type Classification struct {
	Kind     Kind
	Path     string
	Label    string // menu label
	ShowPath bool   // menu: include the raw path as the second line
	Mode     string // live: display mode name, Title Case
	APIPath  string // live: route used for the data fetch, team variants normalized
	GameID   string // offline: game id extracted from the route
	MapID    string // map browse: map id extracted from the route
}

type entry struct {
	prefix   string
	kind     Kind
	label    string
	showPath bool
}

// Table is an ordered prefix table. Later entries are more specific and
// win over earlier catch-alls; matching scans in reverse.
type Table struct {
	entries []entry
}

// DefaultTable returns the route table for geoguessr.com.
func DefaultTable() *Table {
	return &Table{entries: []entry{
		{prefix: "/", kind: KindMenu, label: "In Menu", showPath: true},
		{prefix: "/me", kind: KindMenu, label: "Profile", showPath: true},
		{prefix: "/maps", kind: KindMenu, label: "Browsing maps", showPath: true},
		{prefix: "/shop", kind: KindMenu, label: "Shopping!"},
		{prefix: "/singleplayer", kind: KindMenu, label: "Campaign"},
		{prefix: "/multiplayer", kind: KindMenu, label: "Looking for game...", showPath: true},
		{prefix: "/party", kind: KindMenu, label: "In Lobby"},
		{prefix: "/quiz", kind: KindMenu, label: "Quiz time!"},
		{prefix: "/competitive-streak", kind: KindMenu, label: "City streak"},
		{prefix: "/live-challenge", kind: KindLive},
		{prefix: "/duels", kind: KindLive},
		{prefix: "/team-duels", kind: KindLive},
		{prefix: "/battle-royale", kind: KindLive},
		{prefix: "/bullseye", kind: KindLive},
		{prefix: "/game/", kind: KindOffline},
		{prefix: "/maps/", kind: KindMapBrowse},
	}}
}

// Classify matches path against the table, most specific prefix first.
// The root entry guarantees a match for any path.
func (t *Table) Classify(path string) Classification {
	if path == "" {
		path = "/"
	}

	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if !strings.HasPrefix(path, e.prefix) {
			continue
		}

		switch e.kind {
		case KindLive:
			return Classification{
				Kind:    KindLive,
				Path:    path,
				Mode:    ModeName(path),
				APIPath: normalizeTeamRoute(path),
			}
		case KindOffline:
			return Classification{
				Kind:   KindOffline,
				Path:   path,
				GameID: strings.TrimPrefix(path, "/game/"),
			}
		case KindMapBrowse:
			mapID := firstSegment(strings.TrimPrefix(path, "/maps/"))
			if mapID == "" {
				// Bare /maps/ is still the map browser menu page.
				continue
			}
			return Classification{
				Kind:  KindMapBrowse,
				Path:  path,
				MapID: mapID,
			}
		default:
			return Classification{
				Kind:     KindMenu,
				Path:     path,
				Label:    e.label,
				ShowPath: e.showPath,
			}
		}
	}

	// Unreachable with the root entry present; kept for custom tables.
	return Classification{Kind: KindMenu, Path: path, Label: "In Menu", ShowPath: true}
}

// ModeName derives a display mode from the route's first segment,
// kebab-case to Title Case: "battle-royale" -> "Battle Royale".
func ModeName(path string) string {
	segment := firstSegment(strings.TrimPrefix(path, "/"))
	if segment == "" {
		return ""
	}
	words := strings.Split(segment, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// normalizeTeamRoute maps team-prefixed live routes onto their base
// route, which is what the game server keys its data on.
func normalizeTeamRoute(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	segment := firstSegment(trimmed)
	base, found := strings.CutPrefix(segment, "team-")
	if !found {
		return path
	}
	return "/" + base + strings.TrimPrefix(trimmed, segment)
}

func firstSegment(s string) string {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}
