package inbox

import "strings"

// FilterMode selects which entries the inbox shows.
type FilterMode int

const (
	FilterAll FilterMode = iota
	FilterFavorites
	FilterSearch
)

func (m FilterMode) String() string {
	switch m {
	case FilterFavorites:
		return "favorites"
	case FilterSearch:
		return "search"
	default:
		return "all"
	}
}

// Filter is the active inbox filter. Query is used by FilterSearch only.
type Filter struct {
	Mode  FilterMode
	Query string
}

// Apply returns the entries that pass f, preserving order.
func Apply(entries []Entry, f Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	query := strings.ToLower(strings.TrimSpace(f.Query))
	for _, e := range entries {
		switch f.Mode {
		case FilterFavorites:
			if !e.Favorite {
				continue
			}
		case FilterSearch:
			if query != "" && !strings.Contains(strings.ToLower(e.Profile.DisplayName()), query) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
