package models

import (
	"errors"
	"fmt"
	"strings"
)

// DateRange is a relative time window for filtering by last activity.
type DateRange string

const (
	DateRangeAny       DateRange = ""
	DateRangeToday     DateRange = "today"
	DateRangeYesterday DateRange = "yesterday"
	DateRangeLastWeek  DateRange = "last_week"
	DateRangeLastMonth DateRange = "last_month"
)

var ErrInvalidDateRange = errors.New("invalid date range")

// ParseDateRange validates a date range string. Empty means no constraint.
func ParseDateRange(s string) (DateRange, error) {
	switch r := DateRange(strings.TrimSpace(s)); r {
	case DateRangeAny, DateRangeToday, DateRangeYesterday, DateRangeLastWeek, DateRangeLastMonth:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q (want today, yesterday, last_week or last_month)", ErrInvalidDateRange, s)
}

// ConversationFilters holds the conversation list criteria. Zero values mean
// "no constraint" for every dimension.
type ConversationFilters struct {
	Status    ConversationStatus `json:"status,omitempty"`
	DateRange DateRange          `json:"date_range,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
	Operator  string             `json:"operator,omitempty"`
}

// ActiveCount returns how many filter dimensions are constrained.
func (f ConversationFilters) ActiveCount() int {
	n := 0
	if f.Status != "" {
		n++
	}
	if f.DateRange != DateRangeAny {
		n++
	}
	if f.Operator != "" {
		n++
	}
	if len(f.Tags) > 0 {
		n++
	}
	return n
}

// Validate checks enum fields.
func (f ConversationFilters) Validate() error {
	var errs FieldErrors
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			errs.Reject("status", err)
		}
	}
	if _, err := ParseDateRange(string(f.DateRange)); err != nil {
		errs.Reject("date_range", err)
	}
	return errs.Err()
}
