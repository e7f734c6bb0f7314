package types

import (
	"strings"
	"time"
)

// Severity is the level attached to an alert
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity normalizes a level string. Unknown levels are kept as given
// (upper-cased) so callers can pass their own vocabulary through.
func ParseSeverity(s string) Severity {
	switch v := strings.ToUpper(strings.TrimSpace(s)); v {
	case "WARN":
		return SeverityWarning
	case "ERR":
		return SeverityError
	case "CRIT", "FATAL":
		return SeverityCritical
	case "":
		return SeverityInfo
	default:
		return Severity(v)
	}
}

// IsHigh reports whether the severity is ERROR or CRITICAL
func (s Severity) IsHigh() bool {
	return s == SeverityError || s == SeverityCritical
}

// Alert represents one notification request. The zero value is not useful;
// build alerts with NewAlert so the field map is owned by the alert.
type Alert struct {
	Event  string
	Level  Severity
	Title  string
	Text   string
	Time   time.Time
	fields map[string]any
}

// NewAlert creates an alert, copying fields so later changes by the caller
// are not observed.
func NewAlert(event string, level Severity, title, text string, fields map[string]any, at time.Time) Alert {
	a := Alert{
		Event: event,
		Level: level,
		Title: title,
		Text:  text,
		Time:  at,
	}
	if len(fields) > 0 {
		a.fields = make(map[string]any, len(fields))
		for k, v := range fields {
			a.fields[k] = v
		}
	}
	return a
}

// Field returns a single field value
func (a Alert) Field(key string) (any, bool) {
	v, ok := a.fields[key]
	return v, ok
}

// Fields returns a copy of the alert's extra fields
func (a Alert) Fields() map[string]any {
	out := make(map[string]any, len(a.fields))
	for k, v := range a.fields {
		out[k] = v
	}
	return out
}
