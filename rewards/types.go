/*
Package rewards defines the reward surfaces (captcha, ad, spin, scratch)
on top of the generic ledger.

PURPOSE:
  The ledger only knows "credit this kind by this amount, under this
  window". This package decides the amount: a fixed reward for captcha
  and ad, a server-side draw from a prize table for spin and scratch.
  The client never supplies an amount.

ACTIVITIES:
  captcha:  fixed reward after the captcha oracle accepts the answer
  ad:       fixed reward, unlimited; also buys one extra spin/scratch
            when that activity is at its limit
  spin:     wheel of equal segments, limited per window
  scratch:  card with equal cells, limited per window

DEFAULTS:
  captcha 10, ad 25
  spin    limit 20, prizes [1 2 0 1 2 3 1 0]
  scratch limit 10, prizes [1 5 10 2 25 0 5 2 50 0]
  cooldown 60 minutes after the last play of a window

SEE ALSO:
  - factory.go: JSON catalog
  - draw.go: Prize draw
  - service.go: Service entry points
*/
package rewards

import (
	"fmt"
	"sort"
	"time"

	"github.com/oracoin/reward-engine/generic"
)

// =============================================================================
// PRIZES
// =============================================================================

// Prize is one segment of a wheel or one cell of a scratch card.
type Prize struct {
	Amount generic.Amount
	Weight int
}

// Segments builds an equal-weight prize table, one prize per amount.
func Segments(amounts ...int64) []Prize {
	prizes := make([]Prize, len(amounts))
	for i, a := range amounts {
		prizes[i] = Prize{Amount: generic.Coins(a), Weight: 1}
	}
	return prizes
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// Activity is the configuration of one reward surface.
type Activity struct {
	Kind generic.ActivityKind
	Name string

	// Reward is paid when Prizes is empty.
	Reward generic.Amount

	// Prizes, if set, are drawn from on every play.
	Prizes []Prize

	// Window is nil for unlimited activities.
	Window *generic.WindowPolicy
}

func (a Activity) Limited() bool { return a.Window != nil }

// MaxPrize is the largest amount a single play can pay.
func (a Activity) MaxPrize() generic.Amount {
	if len(a.Prizes) == 0 {
		return a.Reward
	}
	max := a.Prizes[0].Amount
	for _, p := range a.Prizes[1:] {
		if p.Amount.GreaterThan(max) {
			max = p.Amount
		}
	}
	return max
}

func (a Activity) validate() error {
	switch a.Kind {
	case generic.ActivityCaptcha, generic.ActivityAd, generic.ActivitySpin, generic.ActivityScratch:
	default:
		return fmt.Errorf("%w: %q", generic.ErrUnknownActivity, a.Kind)
	}
	if a.Reward.IsNegative() {
		return fmt.Errorf("%s: reward must not be negative", a.Kind)
	}
	total := 0
	for i, p := range a.Prizes {
		if p.Amount.IsNegative() {
			return fmt.Errorf("%s: prize %d is negative", a.Kind, i)
		}
		if p.Weight < 0 {
			return fmt.Errorf("%s: prize %d has negative weight", a.Kind, i)
		}
		total += p.Weight
	}
	if len(a.Prizes) > 0 && total == 0 {
		return fmt.Errorf("%s: prize weights sum to zero", a.Kind)
	}
	if a.Window != nil {
		if a.Window.Limit < 1 {
			return fmt.Errorf("%s: daily limit must be at least 1", a.Kind)
		}
		if a.Window.Cooldown <= 0 {
			return fmt.Errorf("%s: cooldown must be positive", a.Kind)
		}
	}
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the set of configured activities, keyed by kind.
type Catalog struct {
	activities map[generic.ActivityKind]Activity
}

// NewCatalog validates activities and indexes them by kind.
func NewCatalog(activities ...Activity) (*Catalog, error) {
	c := &Catalog{activities: make(map[generic.ActivityKind]Activity, len(activities))}
	for _, a := range activities {
		if err := a.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.activities[a.Kind]; dup {
			return nil, fmt.Errorf("activity %q defined twice", a.Kind)
		}
		c.activities[a.Kind] = a
	}
	return c, nil
}

// Activity returns the configuration for kind.
func (c *Catalog) Activity(kind generic.ActivityKind) (Activity, error) {
	a, ok := c.activities[kind]
	if !ok {
		return Activity{}, fmt.Errorf("%w: %q", generic.ErrUnknownActivity, kind)
	}
	return a, nil
}

// Limited returns the limited activities in a stable order.
func (c *Catalog) Limited() []Activity {
	var out []Activity
	for _, a := range c.activities {
		if a.Limited() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

const (
	DefaultCaptchaReward = 10
	DefaultAdReward      = 25
	DefaultSpinLimit     = 20
	DefaultScratchLimit  = 10
	DefaultCooldown      = 60 * time.Minute
	DefaultMaxSkew       = 5 * time.Minute
)

// DefaultCatalog returns the stock activity set.
func DefaultCatalog() *Catalog {
	spinWindow := generic.WindowPolicy{Limit: DefaultSpinLimit, Cooldown: DefaultCooldown, MaxSkew: DefaultMaxSkew}
	scratchWindow := generic.WindowPolicy{Limit: DefaultScratchLimit, Cooldown: DefaultCooldown, MaxSkew: DefaultMaxSkew}

	c, err := NewCatalog(
		Activity{Kind: generic.ActivityCaptcha, Name: "Captcha", Reward: generic.Coins(DefaultCaptchaReward)},
		Activity{Kind: generic.ActivityAd, Name: "Watch an ad", Reward: generic.Coins(DefaultAdReward)},
		Activity{Kind: generic.ActivitySpin, Name: "Spin to earn", Prizes: Segments(1, 2, 0, 1, 2, 3, 1, 0), Window: &spinWindow},
		Activity{Kind: generic.ActivityScratch, Name: "Scratch card", Prizes: Segments(1, 5, 10, 2, 25, 0, 5, 2, 50, 0), Window: &scratchWindow},
	)
	if err != nil {
		panic(err)
	}
	return c
}
