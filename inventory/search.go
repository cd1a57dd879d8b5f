package inventory

import (
	"sort"
	"strings"

	lev "github.com/agnivade/levenshtein"
)

// Match is one item found by Search.
type Match struct {
	Character string
	Source    string
	Path      []string
}

// Search returns every item whose label contains query, case-insensitively,
// across all characters. Matches come back in store order, depth-first.
func (s *Store) Search(query string) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var out []Match
	for _, snap := range s.Snapshots() {
		walk(snap.Items, func(it *Item) {
			if strings.Contains(strings.ToLower(it.Label), query) {
				out = append(out, Match{
					Character: snap.CharacterName,
					Source:    snap.SourceLabel,
					Path:      it.Path(),
				})
			}
		})
	}
	return out
}

// Suggest returns up to limit distinct label words closest to query by edit
// distance. Words further than a third of the query length (minimum 2) are
// not suggested.
func (s *Store) Suggest(query string, limit int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil
	}
	maxDist := len(query) / 3
	if maxDist < 2 {
		maxDist = 2
	}
	type candidate struct {
		word string
		dist int
	}
	seen := make(map[string]struct{})
	var candidates []candidate
	for _, snap := range s.Snapshots() {
		walk(snap.Items, func(it *Item) {
			for _, word := range labelWords(it.Label) {
				if _, ok := seen[word]; ok {
					continue
				}
				seen[word] = struct{}{}
				if d := lev.ComputeDistance(query, word); d <= maxDist {
					candidates = append(candidates, candidate{word: word, dist: d})
				}
			}
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].word < candidates[j].word
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.word
	}
	return out
}

func labelWords(label string) []string {
	return strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'' || r == '-')
	})
}

func walk(items []*Item, fn func(*Item)) {
	for _, it := range items {
		fn(it)
		walk(it.Children, fn)
	}
}
