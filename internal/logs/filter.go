package logs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mcpregistry/dashboard/internal/domain"
)

// Filter narrows a set of log entries. Zero values match everything;
// "all" is accepted for Workspace and Level.
type Filter struct {
	Workspace string
	Level     string
	Server    string
	Query     string
	Since     time.Time
	Limit     int
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "all")
}

// Match reports whether a single entry passes the filter
func (f Filter) Match(e *domain.LogEntry) bool {
	if !isAll(f.Workspace) && strings.TrimSpace(f.Workspace) != e.Workspace {
		return false
	}
	if !isAll(f.Level) && NormalizeLevel(f.Level) != NormalizeLevel(e.Level) {
		return false
	}
	if s := strings.TrimSpace(f.Server); s != "" && s != e.Server {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(q)) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Apply returns the entries passing the filter ordered by timestamp.
// With a positive Limit only the newest Limit entries are kept.
// The input slice is not modified.
func Apply(entries []domain.LogEntry, f Filter) []domain.LogEntry {
	out := make([]domain.LogEntry, 0, len(entries))
	for i := range entries {
		if f.Match(&entries[i]) {
			out = append(out, entries[i])
		}
	}

	SortByTime(out)

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// SortByTime orders entries by timestamp, keeping file order for ties
func SortByTime(entries []domain.LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

// Group buckets entries by workspace. Groups are ordered by workspace
// name; entries keep their input order.
func Group(entries []domain.LogEntry) []domain.LogGroup {
	index := make(map[string]int)
	groups := []domain.LogGroup{}

	for _, e := range entries {
		i, ok := index[e.Workspace]
		if !ok {
			i = len(groups)
			index[e.Workspace] = i
			groups = append(groups, domain.LogGroup{Workspace: e.Workspace})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}

	for i := range groups {
		groups[i].Count = len(groups[i].Entries)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Workspace < groups[j].Workspace
	})
	return groups
}

// CountLevels counts entries per normalized level
func CountLevels(entries []domain.LogEntry) map[string]int {
	counts := map[string]int{
		domain.LevelDebug: 0,
		domain.LevelInfo:  0,
		domain.LevelWarn:  0,
		domain.LevelError: 0,
	}
	for _, e := range entries {
		counts[NormalizeLevel(e.Level)]++
	}
	return counts
}

// ParseSince reads a time window bound: an RFC3339 timestamp, or a
// duration such as "15m" counted back from now
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC3339 time or duration", s)
	}
	return now.Add(-d), nil
}
