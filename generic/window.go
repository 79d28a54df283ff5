/*
window.go - Daily window resolver for limited activities

PURPOSE:
  Decides whether a stored play counter still belongs to the current
  window, and what the counter looks like after one more play.

POLICY: COOLDOWN TIMESTAMP
  Each limited activity stores {Count, CooldownEnd}.
  - CooldownEnd is zero while the user is below the limit.
  - The play that reaches the limit stamps CooldownEnd = now + Cooldown.
  - While now < CooldownEnd the activity is blocked outright.
  - Once now >= CooldownEnd the counter resets to zero.

  Calendar-day strings are not used: they depend on the client's time
  zone and break on skipped days.

CLOCK SKEW:
  A CooldownEnd later than now + Cooldown + MaxSkew cannot have been
  written by this resolver. It is treated as reset instead of blocking
  the user forever.

EXAMPLE (Limit 20, Cooldown 60m):
  09:00  19 plays, CooldownEnd zero     -> effective 19, not blocked
  09:01  play #20                       -> Count 20, CooldownEnd 10:01
  09:30                                 -> blocked
  10:01                                 -> effective 0, not blocked
*/
package generic

import "time"

// =============================================================================
// WINDOW POLICY
// =============================================================================

type WindowPolicy struct {
	Limit    int
	Cooldown time.Duration

	// MaxSkew bounds how far past now+Cooldown a stored CooldownEnd may be
	// before it is considered nonsensical.
	MaxSkew time.Duration
}

// resolve returns the counter as it applies at now.
func (p WindowPolicy) resolve(now time.Time, c Counter) Counter {
	if c.CooldownEnd.IsZero() {
		if c.Count >= p.Limit {
			// Only reachable when the limit was lowered after the count was written.
			return Counter{}
		}
		return c
	}
	if !now.Before(c.CooldownEnd) {
		return Counter{}
	}
	if c.CooldownEnd.After(now.Add(p.Cooldown + p.MaxSkew)) {
		return Counter{}
	}
	return c
}

// IsBlocked reports whether the activity is in cooldown at now.
func (p WindowPolicy) IsBlocked(now time.Time, c Counter) bool {
	return !p.resolve(now, c).CooldownEnd.IsZero()
}

// EffectiveCount is the number of plays already used in the current window.
func (p WindowPolicy) EffectiveCount(now time.Time, c Counter) int {
	return p.resolve(now, c).Count
}

// Exhausted reports whether one more play would violate the limit.
func (p WindowPolicy) Exhausted(now time.Time, c Counter) bool {
	return p.IsBlocked(now, c) || p.EffectiveCount(now, c) >= p.Limit
}

// Remaining returns how many plays are left before the cooldown starts.
func (p WindowPolicy) Remaining(now time.Time, c Counter) int {
	if p.IsBlocked(now, c) {
		return 0
	}
	if n := p.Limit - p.EffectiveCount(now, c); n > 0 {
		return n
	}
	return 0
}

// Next returns the counter after one successful play at now.
// Callers must check Exhausted first.
func (p WindowPolicy) Next(now time.Time, c Counter) Counter {
	r := p.resolve(now, c)
	next := Counter{Count: r.Count + 1}
	if next.Count >= p.Limit {
		next.CooldownEnd = now.Add(p.Cooldown)
	}
	return next
}

// ExtraPlay returns the counter after granting one bonus play to a user
// who is at the limit. It fails with ErrPlaysRemaining otherwise.
func (p WindowPolicy) ExtraPlay(now time.Time, c Counter) (Counter, error) {
	if !p.Exhausted(now, c) {
		return c, ErrPlaysRemaining
	}
	return Counter{Count: p.Limit - 1}, nil
}
