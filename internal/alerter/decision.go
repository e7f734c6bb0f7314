package alerter

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/wdalert/alertd/internal/state"
	"github.com/wdalert/alertd/internal/types"
)

// Verdict is the outcome of a suppression check
type Verdict int

const (
	Allow Verdict = iota
	SuppressCooldown
	SuppressDuplicate
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case SuppressCooldown:
		return "cooldown"
	case SuppressDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Decision carries the verdict and the dedupe key computed for the alert
type Decision struct {
	Verdict Verdict
	Key     string
}

// Suppressed reports whether the alert must not be delivered
func (d Decision) Suppressed() bool {
	return d.Verdict != Allow
}

// Policy holds the suppression windows
type Policy struct {
	DefaultCooldown time.Duration
	Cooldowns       map[string]time.Duration
	DedupeWindow    time.Duration
}

// Cooldown returns the window for an event, falling back to the default
func (p Policy) Cooldown(event string) time.Duration {
	if d, ok := p.Cooldowns[event]; ok {
		return d
	}
	return p.DefaultCooldown
}

// ContentHash is the hex SHA-1 of the rendered text
func ContentHash(rendered string) string {
	sum := sha1.Sum([]byte(rendered))
	return hex.EncodeToString(sum[:])
}

// DedupeKey identifies an event with specific content
func DedupeKey(event, rendered string) string {
	return event + ":" + ContentHash(rendered)
}

// Decide checks cooldown then dedupe against st. A suppression bumps the
// event's counter in st; an allow leaves st unchanged. The caller must hold
// the store lock.
func (p Policy) Decide(st *state.State, a types.Alert, rendered string, now time.Time) Decision {
	key := DedupeKey(a.Event, rendered)
	ts := state.Unix(now)

	verdict := Allow
	if last, ok := st.LastEventSent[a.Event]; ok && ts-last < p.Cooldown(a.Event).Seconds() {
		verdict = SuppressCooldown
	} else if last, ok := st.LastKeySent[key]; ok && ts-last < p.DedupeWindow.Seconds() {
		verdict = SuppressDuplicate
	}

	if verdict != Allow {
		if st.SuppressedCount == nil {
			st.SuppressedCount = make(map[string]int)
		}
		st.SuppressedCount[a.Event]++
	}
	return Decision{Verdict: verdict, Key: key}
}
