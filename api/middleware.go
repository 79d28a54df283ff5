package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oracoin/reward-engine/generic"
	"github.com/oracoin/reward-engine/identity"
)

// =============================================================================
// REQUEST LOGGING
// =============================================================================

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if id, ok := identity.CurrentUserID(r.Context()); ok {
				fields = append(fields, zap.String("user_id", string(id)))
			}
			switch {
			case ww.Status() >= 500:
				logger.Error("request", fields...)
			case ww.Status() >= 400:
				logger.Info("request", fields...)
			default:
				logger.Debug("request", fields...)
			}
		})
	}
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

type profileKey struct{}

// TokenVerifier checks an identity provider bearer token.
type TokenVerifier interface {
	Verify(token string) (generic.UserID, generic.Profile, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// subject (identity.WithUser) and its profile on the request context.
func RequireUser(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "Sign in required", identity.ErrMissingToken)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "Sign in required", identity.ErrInvalidToken)
				return
			}

			id, profile, err := v.Verify(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Session expired, please sign in again", err)
				return
			}

			ctx := identity.WithUser(r.Context(), id)
			ctx = context.WithValue(ctx, profileKey{}, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func profileFrom(ctx context.Context) generic.Profile {
	p, _ := ctx.Value(profileKey{}).(generic.Profile)
	return p
}

// =============================================================================
// PER-USER THROTTLING
// =============================================================================

type userLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// Throttle is a token bucket per authenticated user.
type Throttle struct {
	mu       sync.Mutex
	limiters map[generic.UserID]*userLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

// NewThrottle allows perMinute actions per user, with bursts of half that.
func NewThrottle(perMinute int) *Throttle {
	perMinute = max(perMinute, 1)
	return &Throttle{
		limiters: make(map[generic.UserID]*userLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		idle:     5 * time.Minute,
	}
}

func (t *Throttle) allow(id generic.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for key, l := range t.limiters {
		if now.After(l.expires) {
			delete(t.limiters, key)
		}
	}

	l, ok := t.limiters[id]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[id] = l
	}
	l.expires = now.Add(t.idle)
	return l.limiter.Allow()
}

func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identity.CurrentUserID(r.Context())
		if !t.allow(id) {
			writeError(w, http.StatusTooManyRequests, "Too many requests, slow down", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// IN-FLIGHT GUARD
// =============================================================================

// InFlight rejects a second request for the same user and route while the
// first one is still running.
type InFlight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{active: make(map[string]struct{})}
}

func (f *InFlight) acquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.active[key]; busy {
		return false
	}
	f.active[key] = struct{}{}
	return true
}

func (f *InFlight) release(key string) {
	f.mu.Lock()
	delete(f.active, key)
	f.mu.Unlock()
}

func (f *InFlight) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identity.CurrentUserID(r.Context())
		key := string(id) + " " + r.Method + " " + r.URL.Path
		if !f.acquire(key) {
			writeError(w, http.StatusConflict, "Request already in progress", nil)
			return
		}
		defer f.release(key)
		next.ServeHTTP(w, r)
	})
}
