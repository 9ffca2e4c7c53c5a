// Package filter narrows a conversation list by criteria and free-text search.
package filter

import (
	"strings"
	"time"

	"github.com/tony-assistant/console/internal/models"
)

// Apply returns the conversations that satisfy every active criterion and
// the search text, preserving input order. It never mutates its input.
func Apply(convs []models.Conversation, f models.ConversationFilters, search string, now time.Time) []models.Conversation {
	needle := strings.ToLower(strings.TrimSpace(search))
	from, to, bounded := Window(f.DateRange, now)

	out := make([]models.Conversation, 0, len(convs))
	for _, conv := range convs {
		if f.Status != "" && conv.Status != f.Status {
			continue
		}
		if f.Operator != "" && conv.AssignedOperator != f.Operator {
			continue
		}
		if len(f.Tags) > 0 && !hasAnyTag(conv.Tags, f.Tags) {
			continue
		}
		if bounded && !within(conv.LastActivity, from, to) {
			continue
		}
		if needle != "" && !Matches(conv, needle) {
			continue
		}
		out = append(out, conv)
	}
	return out
}

// Window resolves a date range to the half-open interval [from, to) in
// now's location. A zero to leaves the interval open above. bounded is false for an empty
// or unknown range.
func Window(r models.DateRange, now time.Time) (from, to time.Time, bounded bool) {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch r {
	case models.DateRangeToday:
		return midnight, time.Time{}, true
	case models.DateRangeYesterday:
		return midnight.AddDate(0, 0, -1), midnight, true
	case models.DateRangeLastWeek:
		return now.AddDate(0, 0, -7), time.Time{}, true
	case models.DateRangeLastMonth:
		return now.AddDate(0, -1, 0), time.Time{}, true
	}
	return time.Time{}, time.Time{}, false
}

func within(t, from, to time.Time) bool {
	if t.Before(from) {
		return false
	}
	return to.IsZero() || t.Before(to)
}

// Matches reports whether the lowercase needle appears in the user name,
// any tag, or any message content, ignoring case.
func Matches(conv models.Conversation, needle string) bool {
	if strings.Contains(strings.ToLower(conv.User.Name), needle) {
		return true
	}
	for _, tag := range conv.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	for _, msg := range conv.Messages {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			return true
		}
	}
	return false
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Tags returns the distinct tags across convs in first-seen order.
func Tags(convs []models.Conversation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, conv := range convs {
		for _, tag := range conv.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
