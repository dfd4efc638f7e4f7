// Package game defines the core data model of the adventure engine: scenes,
// themes, NPCs and the parser that recovers scenes from raw model output.
package game

// Theme selects the visual and narrative style bundle for a scene.
type Theme string

const (
	ThemeFantasy         Theme = "FANTASY"
	ThemeCyberpunk       Theme = "CYBERPUNK"
	ThemeSciFi           Theme = "SCI_FI"
	ThemeHorror          Theme = "HORROR"
	ThemeNoir            Theme = "NOIR"
	ThemeSteampunk       Theme = "STEAMPUNK"
	ThemeSolarpunk       Theme = "SOLARPUNK"
	ThemePostApocalyptic Theme = "POST_APOCALYPTIC"
	ThemeWestern         Theme = "WESTERN"
	ThemePirate          Theme = "PIRATE"
)

// Themes lists every valid theme in presentation order.
var Themes = []Theme{
	ThemeFantasy,
	ThemeCyberpunk,
	ThemeSciFi,
	ThemeHorror,
	ThemeNoir,
	ThemeSteampunk,
	ThemeSolarpunk,
	ThemePostApocalyptic,
	ThemeWestern,
	ThemePirate,
}

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	for _, known := range Themes {
		if t == known {
			return true
		}
	}
	return false
}

// NormalizeTheme maps arbitrary provider output onto the bounded theme set.
// Unknown values fall back to FANTASY rather than failing the turn.
func NormalizeTheme(s string) Theme {
	t := Theme(s)
	if t.Valid() {
		return t
	}
	return ThemeFantasy
}

// NPC is a non-player character tracked across turns.
type NPC struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Dialogue    string `json:"dialogue"`
}

// Scene is one narrative beat produced by the text provider.
//
// Inventory, WorldState and NPCs are deltas in the merge-by-presence sense:
// a nil pointer means the provider omitted the field and the session keeps
// its prior value, while a non-nil pointer (even to an empty value) is the
// new authoritative state.
type Scene struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Choices     []string `json:"choices"`
	ImagePrompt string   `json:"imagePrompt"`
	Theme       Theme    `json:"theme"`

	Inventory  *[]string          `json:"inventory,omitempty"`
	WorldState *map[string]string `json:"worldState,omitempty"`
	NPCs       *[]NPC             `json:"npcs,omitempty"`
}

// VisualPrompt returns the text handed to the image backend for this scene,
// preferring the dedicated image prompt over the full description.
func (s *Scene) VisualPrompt() string {
	if s.ImagePrompt != "" {
		return s.ImagePrompt
	}
	return s.Description
}

// HistoryEntry is the immutable record appended after every turn.
type HistoryEntry struct {
	Description string `json:"description"`
	Image       string `json:"image"`
}

// WorldView is the authoritative game state serialized for the text
// provider on every turn.
type WorldView struct {
	Inventory  []string          `json:"inventory"`
	WorldState map[string]string `json:"worldState"`
	NPCs       []NPC             `json:"npcs"`
}
