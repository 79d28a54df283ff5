package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const validationPrompt = "Determine if the user entry matches the captcha shown in the image. " +
	"Focus on character recognition, not on image content. " +
	`Reply with JSON only: {"isValid": true} or {"isValid": false}.`

// GenerativeOracle asks a hosted generative model whether an answer
// matches a captcha image.
type GenerativeOracle struct {
	Endpoint string
	Model    string
	Client   *http.Client
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewGenerativeOracle authenticates requests with apiKey as a bearer token.
func NewGenerativeOracle(endpoint, model, apiKey string, timeout time.Duration, logger *zap.Logger) *GenerativeOracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
	return &GenerativeOracle{
		Endpoint: endpoint,
		Model:    model,
		Client:   oauth2.NewClient(context.Background(), src),
		Timeout:  timeout,
		Logger:   logger,
	}
}

type oracleRequest struct {
	Model        string `json:"model,omitempty"`
	Prompt       string `json:"prompt"`
	CaptchaImage string `json:"captchaImage"`
	UserEntry    string `json:"userEntry"`
}

type oracleResponse struct {
	IsValid *bool `json:"isValid"`
}

// Validate sends image (a data URI) and answer to the model.
func (o *GenerativeOracle) Validate(ctx context.Context, image, answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" || !strings.HasPrefix(image, "data:image/") {
		return false
	}

	ok, err := o.validate(ctx, image, answer)
	if err != nil {
		o.Logger.Warn("captcha oracle failed", zap.Error(err), zap.String("endpoint", o.Endpoint))
		return false
	}
	return ok
}

func (o *GenerativeOracle) validate(ctx context.Context, image, answer string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	body, err := json.Marshal(oracleRequest{
		Model:        o.Model,
		Prompt:       validationPrompt,
		CaptchaImage: image,
		UserEntry:    answer,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client().Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("oracle returned %s", resp.Status)
	}

	var out oracleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return false, fmt.Errorf("decode oracle reply: %w", err)
	}
	if out.IsValid == nil {
		return false, fmt.Errorf("oracle reply has no isValid field")
	}
	return *out.IsValid, nil
}

func (o *GenerativeOracle) client() *http.Client {
	if o.Client == nil {
		return http.DefaultClient
	}
	return o.Client
}
