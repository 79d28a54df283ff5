package rewards

import (
	"math/rand/v2"

	"github.com/oracoin/reward-engine/generic"
)

// Picker returns a uniform integer in [0, n).
type Picker interface {
	IntN(n int) int
}

type globalPicker struct{}

func (globalPicker) IntN(n int) int { return rand.IntN(n) }

// Draw picks one prize with probability proportional to its weight.
func Draw(p Picker, prizes []Prize) generic.Amount {
	total := 0
	for _, pr := range prizes {
		total += pr.Weight
	}
	if total <= 0 {
		return generic.Coins(0)
	}
	n := p.IntN(total)
	for _, pr := range prizes {
		if n < pr.Weight {
			return pr.Amount
		}
		n -= pr.Weight
	}
	return prizes[len(prizes)-1].Amount
}
