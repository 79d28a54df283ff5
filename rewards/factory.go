/*
factory.go - JSON to Go catalog conversion

JSON SCHEMA:
  {
    "cooldown_minutes": 60,
    "max_skew_minutes": 5,
    "activities": [
      {"kind": "captcha", "name": "Captcha", "reward": "10"},
      {"kind": "ad", "reward": "25"},
      {"kind": "spin", "daily_limit": 20,
       "prizes": [{"amount": "1"}, {"amount": "2"}, {"amount": "0", "weight": 2}]}
    ]
  }

  Amounts are decimal strings or numbers. A prize without a weight has
  weight 1. "cooldown_minutes" applies to every limited activity unless
  the activity sets its own.

USAGE:
  catalog, err := rewards.LoadCatalog("config/rewards.json")
  catalog, err := rewards.ParseCatalog(jsonBytes)
*/
package rewards

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oracoin/reward-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type CatalogJSON struct {
	CooldownMinutes int            `json:"cooldown_minutes,omitempty"`
	MaxSkewMinutes  int            `json:"max_skew_minutes,omitempty"`
	Activities      []ActivityJSON `json:"activities"`
}

type ActivityJSON struct {
	Kind            string      `json:"kind"`
	Name            string      `json:"name,omitempty"`
	Reward          json.Number `json:"reward,omitempty"`
	DailyLimit      int         `json:"daily_limit,omitempty"`
	CooldownMinutes int         `json:"cooldown_minutes,omitempty"`
	Prizes          []PrizeJSON `json:"prizes,omitempty"`
}

type PrizeJSON struct {
	Amount json.Number `json:"amount"`
	Weight *int        `json:"weight,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog converts a JSON catalog into a validated Catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}
	if len(cj.Activities) == 0 {
		return nil, fmt.Errorf("catalog defines no activities")
	}

	cooldown := DefaultCooldown
	if cj.CooldownMinutes > 0 {
		cooldown = time.Duration(cj.CooldownMinutes) * time.Minute
	}
	skew := DefaultMaxSkew
	if cj.MaxSkewMinutes > 0 {
		skew = time.Duration(cj.MaxSkewMinutes) * time.Minute
	}

	activities := make([]Activity, 0, len(cj.Activities))
	for _, aj := range cj.Activities {
		a, err := aj.toActivity(cooldown, skew)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return NewCatalog(activities...)
}

func (aj ActivityJSON) toActivity(cooldown, skew time.Duration) (Activity, error) {
	a := Activity{
		Kind:   generic.ActivityKind(aj.Kind),
		Name:   aj.Name,
		Reward: generic.Coins(0),
	}
	if a.Name == "" {
		a.Name = aj.Kind
	}

	if aj.Reward != "" {
		r, err := generic.ParseAmount(aj.Reward.String())
		if err != nil {
			return Activity{}, fmt.Errorf("%s: invalid reward %q", aj.Kind, aj.Reward)
		}
		a.Reward = r
	}

	for i, pj := range aj.Prizes {
		amt, err := generic.ParseAmount(pj.Amount.String())
		if err != nil {
			return Activity{}, fmt.Errorf("%s: invalid prize %d amount %q", aj.Kind, i, pj.Amount)
		}
		weight := 1
		if pj.Weight != nil {
			weight = *pj.Weight
		}
		a.Prizes = append(a.Prizes, Prize{Amount: amt, Weight: weight})
	}

	if aj.DailyLimit > 0 {
		w := generic.WindowPolicy{Limit: aj.DailyLimit, Cooldown: cooldown, MaxSkew: skew}
		if aj.CooldownMinutes > 0 {
			w.Cooldown = time.Duration(aj.CooldownMinutes) * time.Minute
		}
		a.Window = &w
	}
	return a, nil
}
