package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// CHALLENGES
// =============================================================================

func TestChallenges_CorrectAnswer_SingleUse(t *testing.T) {
	store := base64Captcha.NewMemoryStore(100, time.Minute)
	c := NewChallenges(store)

	ch, err := c.Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ID)
	assert.True(t, strings.HasPrefix(ch.Image, "data:image/png;base64,"))

	answer := store.Get(ch.ID, false)
	require.Len(t, answer, 5)

	assert.True(t, c.Validate(context.Background(), ch.ID, " "+answer+" "))
	assert.False(t, c.Validate(context.Background(), ch.ID, answer), "challenge is consumed")
}

func TestChallenges_WrongAnswer_Consumes(t *testing.T) {
	store := base64Captcha.NewMemoryStore(100, time.Minute)
	c := NewChallenges(store)

	ch, err := c.Generate()
	require.NoError(t, err)
	answer := store.Get(ch.ID, false)

	assert.False(t, c.Validate(context.Background(), ch.ID, "wrong"))
	assert.False(t, c.Validate(context.Background(), ch.ID, answer))
}

func TestChallenges_EmptyInputs(t *testing.T) {
	c := NewChallenges(nil)

	assert.False(t, c.Validate(context.Background(), "", "12345"))
	assert.False(t, c.Validate(context.Background(), "some-id", "   "))
}

// =============================================================================
// GENERATIVE ORACLE
// =============================================================================

const pngURI = "data:image/png;base64,iVBORw0KGgo="

func newOracleServer(t *testing.T, handler http.HandlerFunc) (*GenerativeOracle, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewGenerativeOracle(srv.URL, "vision-test", "api-key", time.Second, zap.NewNop()), &calls
}

func TestGenerativeOracle_Valid(t *testing.T) {
	oracle, calls := newOracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))

		var req oracleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, pngURI, req.CaptchaImage)
		assert.Equal(t, "X7k2p", req.UserEntry)
		assert.Equal(t, "vision-test", req.Model)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"isValid": true}`))
	})

	assert.True(t, oracle.Validate(context.Background(), pngURI, " X7k2p "))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerativeOracle_FailsClosed(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"rejected", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"isValid": false}`)) }},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"malformed", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`yes it matches`)) }},
		{"missing field", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"answer": true}`)) }},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(1500 * time.Millisecond)
			w.Write([]byte(`{"isValid": true}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oracle, _ := newOracleServer(t, tc.handler)
			assert.False(t, oracle.Validate(context.Background(), pngURI, "abc"))
		})
	}
}

func TestGenerativeOracle_RejectsBadInputWithoutCalling(t *testing.T) {
	oracle, calls := newOracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"isValid": true}`))
	})

	assert.False(t, oracle.Validate(context.Background(), "https://example.com/c.png", "abc"))
	assert.False(t, oracle.Validate(context.Background(), pngURI, "  "))
	assert.Equal(t, int32(0), calls.Load())
}

// =============================================================================
// REDIS STORE
// =============================================================================

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REWARDS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("REWARDS_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, time.Minute)
	require.NoError(t, store.Ping(context.Background()))

	c := NewChallenges(store)
	ch, err := c.Generate()
	require.NoError(t, err)

	answer := store.Get(ch.ID, false)
	require.NotEmpty(t, answer)
	assert.True(t, c.Validate(context.Background(), ch.ID, answer))
	assert.Empty(t, store.Get(ch.ID, false))
}
