/*
Package captcha validates captcha answers.

ORACLES:
  Oracle is the single capability the reward service needs: "does this
  answer match this image?" Two implementations exist:

  - Challenges: images are generated locally (base64Captcha) and the
    expected answer is kept in a base64Captcha.Store (memory or redis).
    The "image" passed to Validate is the challenge id. Answers are
    single use.

  - GenerativeOracle: the image itself (a data URI) and the user's answer
    are sent to a hosted generative model that replies {"isValid": bool}.

FAILURE MODE:
  Every oracle fails closed. Transport errors, timeouts and malformed
  replies all read as "not valid", so no reward is granted.
*/
package captcha

import (
	"context"
	"strings"
)

// Oracle decides whether answer matches the captcha identified by image.
type Oracle interface {
	Validate(ctx context.Context, image, answer string) bool
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, image, answer string) bool

func (f OracleFunc) Validate(ctx context.Context, image, answer string) bool {
	return f(ctx, image, answer)
}

// normalizeAnswer is the form answers are compared in.
func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
