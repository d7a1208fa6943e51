package settings

import "strings"

// SynonymGroup is one bidirectional group of interchangeable terms
// (spec I6, §4.4).
type SynonymGroup struct {
	ID    string   `json:"objectID"`
	Words []string `json:"synonyms"`
}

// SynonymStore holds a tenant's synonym groups and expands queries
// against them.
type SynonymStore struct {
	Groups []SynonymGroup `json:"groups"`

	// index maps a lowercased word to every other word in its group.
	index map[string][]string
}

// Build (re)computes the lookup index. Call after loading/mutating
// Groups.
func (s *SynonymStore) Build() {
	s.index = make(map[string][]string)
	for _, g := range s.Groups {
		for _, w := range g.Words {
			key := strings.ToLower(w)
			for _, other := range g.Words {
				if strings.EqualFold(other, w) {
					continue
				}
				s.index[key] = append(s.index[key], other)
			}
		}
	}
}

// ExpandQuery returns alternative query texts, always starting with q
// itself (spec §4.4: "starting with q itself"). Each token is expanded
// independently; at most one substitution per alternative to keep the
// fan-out bounded, consistent with the executor's 15-alternative cap
// (spec §4.7.4).
func (s *SynonymStore) ExpandQuery(q string) []string {
	out := []string{q}
	if s == nil || len(s.index) == 0 {
		return out
	}
	words := strings.Fields(q)
	seen := map[string]bool{q: true}
	for i, w := range words {
		alts, ok := s.index[strings.ToLower(w)]
		if !ok {
			continue
		}
		for _, alt := range alts {
			cp := append([]string(nil), words...)
			cp[i] = alt
			candidate := strings.Join(cp, " ")
			if !seen[candidate] {
				seen[candidate] = true
				out = append(out, candidate)
			}
		}
	}
	return out
}
