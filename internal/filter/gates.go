// Package filter implements the gates a feed item must pass before novelty is checked.
package filter

import (
	"time"

	"dynamic_bot/internal/model"
)

// LiveAction is the publish-action label the platform uses for "started a live broadcast".
const LiveAction = "直播了"

// Verdict is the result of checking an item against the gates.
type Verdict int

// Possible verdicts.
const (
	Pass Verdict = iota
	Stale
	LivePseudoEvent
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Stale:
		return "stale"
	case LivePseudoEvent:
		return "live"
	default:
		return "unknown"
	}
}

// Gates holds the recency and pseudo-event gates.
type Gates struct {
	// StaleAfter is the maximum item age. An item exactly this old is stale.
	StaleAfter time.Duration
	// LiveAction overrides LiveAction when non-empty.
	LiveAction string
}

// Check reports whether item may proceed to the novelty check at time now.
// The live gate is consulted first so a pseudo-event is reported as such even when old.
func (g Gates) Check(item model.RawItem, now time.Time) Verdict {
	if item.Action == g.liveAction() {
		return LivePseudoEvent
	}
	if now.Sub(item.PublishedAt) >= g.StaleAfter {
		return Stale
	}
	return Pass
}

func (g Gates) liveAction() string {
	if g.LiveAction != "" {
		return g.LiveAction
	}
	return LiveAction
}
