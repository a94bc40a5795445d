package source

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy decides what happens to a record whose window date is missing or
// unusable.
type Policy int

const (
	PolicySkip Policy = iota
	PolicyInclude
	PolicyWarnSkip
	PolicyWarnInclude
)

func (p Policy) include() bool { return p == PolicyInclude || p == PolicyWarnInclude }
func (p Policy) warn() bool    { return p == PolicyWarnSkip || p == PolicyWarnInclude }

// ParsePolicy maps a configuration string onto a Policy. Unknown strings
// fall back to skip.
func ParsePolicy(s string) Policy {
	switch s {
	case "include":
		return PolicyInclude
	case "warn-skip":
		return PolicyWarnSkip
	case "warn-include":
		return PolicyWarnInclude
	default:
		return PolicySkip
	}
}

// Records older than this year, or in the future, are flagged suspicious
// and handled under the invalid-date policy.
const sanityYear = 1990

// DefaultDateFields is the candidate order when a filter does not configure
// its own: prefer the most authoritative field first.
var DefaultDateFields = []string{"updatedAt", "updated", "createdAt", "created"}

// SinceFilter excludes records whose window date is strictly older than
// Cutoff. Missing and invalid dates resolve through independently
// configured policies.
type SinceFilter struct {
	Cutoff        time.Time
	DateFields    []string
	MissingPolicy Policy
	InvalidPolicy Policy
	Log           *logrus.Entry
}

// Keep reports whether rec survives the window. The first present candidate
// date field decides; a valid date equal to or newer than the cutoff is
// retained, strictly older is excluded regardless of policy.
func (f *SinceFilter) Keep(rec Record, summary *Summary) bool {
	fields := f.DateFields
	if len(fields) == 0 {
		fields = DefaultDateFields
	}

	for _, field := range fields {
		raw, ok := rec[field]
		if !ok || raw == nil {
			continue
		}

		summary.fieldUsed(field)

		t, err := parseDate(raw)
		if err != nil {
			return f.resolveInvalid(rec, field, fmt.Sprintf("unparseable date %v", raw), summary)
		}
		if t.Year() < sanityYear || t.After(time.Now().Add(24*time.Hour)) {
			summary.Suspicious++
			return f.resolveInvalid(rec, field, fmt.Sprintf("suspicious date %s", t.Format(time.RFC3339)), summary)
		}

		if t.Before(f.Cutoff) {
			summary.FilteredOld++
			return false
		}
		return true
	}

	summary.MissingDate++
	if f.MissingPolicy.warn() && f.Log != nil {
		f.Log.WithField("recordID", rec["id"]).Warn("no window date field present")
	}
	return f.MissingPolicy.include()
}

func (f *SinceFilter) resolveInvalid(rec Record, field, reason string, summary *Summary) bool {
	summary.InvalidDate++
	if f.InvalidPolicy.warn() && f.Log != nil {
		f.Log.WithFields(logrus.Fields{
			"recordID": rec["id"],
			"field":    field,
		}).Warn(reason)
	}
	return f.InvalidPolicy.include()
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", d)
	case float64:
		// Epoch milliseconds, the search-index export convention.
		return time.UnixMilli(int64(d)).UTC(), nil
	case int64:
		return time.UnixMilli(d).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot interpret %T as datetime", v)
	}
}
