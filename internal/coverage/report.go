package coverage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// maxSamples bounds how many example odd/player IDs are kept per unmapped value.
const maxSamples = 5

// Report accumulates normalization gaps seen during one run. Safe for concurrent use.
type Report struct {
	mu         sync.Mutex
	unmapped   map[string]*UnmappedStat
	unresolved map[string]*UnresolvedPlayer
}

// UnmappedStat is a statistic ID that fell through to the fallback slug.
type UnmappedStat struct {
	StatID  string   `json:"stat_id"`
	Slug    string   `json:"slug"`
	League  string   `json:"league"`
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// UnresolvedPlayer is a player ID missing from the event's player map.
type UnresolvedPlayer struct {
	PlayerID string   `json:"player_id"`
	League   string   `json:"league"`
	Count    int      `json:"count"`
	Samples  []string `json:"samples"`
}

// Summary is the read-only view of a Report.
type Summary struct {
	UnmappedStats     []UnmappedStat     `json:"unmapped_stats"`
	UnresolvedPlayers []UnresolvedPlayer `json:"unresolved_players"`
	UnmappedTotal     int                `json:"unmapped_total"`
	UnresolvedTotal   int                `json:"unresolved_total"`
	Recommendations   []string           `json:"recommendations"`
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		unmapped:   make(map[string]*UnmappedStat),
		unresolved: make(map[string]*UnresolvedPlayer),
	}
}

// RecordUnmappedStat notes that statID had no explicit rule and was stored as slug.
// A nil Report ignores the call.
func (r *Report) RecordUnmappedStat(league, statID, slug, sample string) {
	if r == nil {
		return
	}
	league = strings.ToUpper(league)
	key := league + "\x00" + strings.ToLower(statID)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.unmapped[key]
	if !ok {
		entry = &UnmappedStat{StatID: statID, Slug: slug, League: league}
		r.unmapped[key] = entry
	}
	entry.Count++
	entry.Samples = addSample(entry.Samples, sample)
}

// RecordUnresolvedPlayer notes a player ID that could not be matched. A nil Report ignores the call.
func (r *Report) RecordUnresolvedPlayer(league, playerID, sample string) {
	if r == nil {
		return
	}
	league = strings.ToUpper(league)
	key := league + "\x00" + playerID

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.unresolved[key]
	if !ok {
		entry = &UnresolvedPlayer{PlayerID: playerID, League: league}
		r.unresolved[key] = entry
	}
	entry.Count++
	entry.Samples = addSample(entry.Samples, sample)
}

// Merge folds other into r.
func (r *Report) Merge(other *Report) {
	if r == nil || other == nil || r == other {
		return
	}
	s := other.Summary()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range s.UnmappedStats {
		key := u.League + "\x00" + strings.ToLower(u.StatID)
		entry, ok := r.unmapped[key]
		if !ok {
			entry = &UnmappedStat{StatID: u.StatID, Slug: u.Slug, League: u.League}
			r.unmapped[key] = entry
		}
		entry.Count += u.Count
		for _, sample := range u.Samples {
			entry.Samples = addSample(entry.Samples, sample)
		}
	}
	for _, p := range s.UnresolvedPlayers {
		key := p.League + "\x00" + p.PlayerID
		entry, ok := r.unresolved[key]
		if !ok {
			entry = &UnresolvedPlayer{PlayerID: p.PlayerID, League: p.League}
			r.unresolved[key] = entry
		}
		entry.Count += p.Count
		for _, sample := range p.Samples {
			entry.Samples = addSample(entry.Samples, sample)
		}
	}
}

// Summary snapshots the report. Entries are ordered by count, most frequent first.
func (r *Report) Summary() Summary {
	var s Summary
	if r == nil {
		s.Recommendations = []string{}
		return s
	}

	r.mu.Lock()
	for _, u := range r.unmapped {
		cp := *u
		cp.Samples = append([]string(nil), u.Samples...)
		s.UnmappedStats = append(s.UnmappedStats, cp)
		s.UnmappedTotal += u.Count
	}
	for _, p := range r.unresolved {
		cp := *p
		cp.Samples = append([]string(nil), p.Samples...)
		s.UnresolvedPlayers = append(s.UnresolvedPlayers, cp)
		s.UnresolvedTotal += p.Count
	}
	r.mu.Unlock()

	sort.Slice(s.UnmappedStats, func(i, j int) bool {
		a, b := s.UnmappedStats[i], s.UnmappedStats[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.League != b.League {
			return a.League < b.League
		}
		return a.StatID < b.StatID
	})
	sort.Slice(s.UnresolvedPlayers, func(i, j int) bool {
		a, b := s.UnresolvedPlayers[i], s.UnresolvedPlayers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.PlayerID < b.PlayerID
	})

	s.Recommendations = recommend(s)
	return s
}

// Empty reports whether nothing was recorded.
func (s Summary) Empty() bool {
	return len(s.UnmappedStats) == 0 && len(s.UnresolvedPlayers) == 0
}

func recommend(s Summary) []string {
	recs := []string{}
	if n := len(s.UnmappedStats); n > 0 {
		top := make([]string, 0, 3)
		for i := 0; i < n && i < 3; i++ {
			top = append(top, s.UnmappedStats[i].StatID)
		}
		recs = append(recs, fmt.Sprintf(
			"%d unmapped statistic IDs seen (%d occurrences); consider adding explicit synonym rules, starting with %s",
			n, s.UnmappedTotal, strings.Join(top, ", ")))
	}
	if n := len(s.UnresolvedPlayers); n > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d player IDs missing from event player maps; check the player directory for new or renamed players",
			n))
	}
	return recs
}

func addSample(samples []string, sample string) []string {
	if sample == "" || len(samples) >= maxSamples {
		return samples
	}
	for _, s := range samples {
		if s == sample {
			return samples
		}
	}
	return append(samples, sample)
}
