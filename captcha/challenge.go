package captcha

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

// Challenge is one issued captcha: an opaque id and a data URI PNG.
type Challenge struct {
	ID    string `json:"captcha_id"`
	Image string `json:"image"`
}

// Challenges issues digit captchas and validates answers against the
// configured answer store.
type Challenges struct {
	store   base64Captcha.Store
	captcha *base64Captcha.Captcha
}

// NewChallenges uses store for answers. A nil store falls back to an
// in-process memory store.
func NewChallenges(store base64Captcha.Store) *Challenges {
	if store == nil {
		store = base64Captcha.NewMemoryStore(base64Captcha.GCLimitNumber, 10*time.Minute)
	}
	// 120x40, five digits
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	return &Challenges{
		store:   store,
		captcha: base64Captcha.NewCaptcha(driver, store),
	}
}

// Generate issues a new challenge.
func (c *Challenges) Generate() (Challenge, error) {
	id, b64, _, err := c.captcha.Generate()
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{ID: id, Image: b64}, nil
}

// Validate checks answer against the challenge whose id is image. Any
// attempt with a non-empty answer consumes the challenge.
func (c *Challenges) Validate(_ context.Context, image, answer string) bool {
	answer = normalizeAnswer(answer)
	if image == "" || answer == "" {
		return false
	}
	return c.store.Verify(image, answer, true)
}
