package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fairway-labs/fairway/core/pkg/problem"
)

// Policy sets the per-actor request budget.
type Policy struct {
	RPM   int
	Burst int
}

// LimiterStore decides whether an actor may proceed. Implementations are
// the in-process store below and the Redis store for multi-node
// deployments.
type LimiterStore interface {
	Allow(ctx context.Context, actorID string, policy Policy, cost int) (bool, error)
}

// LocalLimiterStore keeps a token bucket per actor in memory.
type LocalLimiterStore struct {
	mu      sync.Mutex
	actors  map[string]*actorLimiter
	maxIdle time.Duration
}

type actorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiterStore() *LocalLimiterStore {
	s := &LocalLimiterStore{
		actors:  make(map[string]*actorLimiter),
		maxIdle: 3 * time.Minute,
	}
	go s.cleanup()
	return s
}

func (s *LocalLimiterStore) Allow(_ context.Context, actorID string, policy Policy, cost int) (bool, error) {
	s.mu.Lock()
	a, ok := s.actors[actorID]
	if !ok {
		a = &actorLimiter{limiter: rate.NewLimiter(rate.Limit(float64(policy.RPM)/60), policy.Burst)}
		s.actors[actorID] = a
	}
	a.lastSeen = time.Now()
	s.mu.Unlock()

	return a.limiter.AllowN(time.Now(), cost), nil
}

// cleanup drops idle actors so the map does not grow unbounded.
func (s *LocalLimiterStore) cleanup() {
	for {
		time.Sleep(time.Minute)
		s.mu.Lock()
		for id, a := range s.actors {
			if time.Since(a.lastSeen) > s.maxIdle {
				delete(s.actors, id)
			}
		}
		s.mu.Unlock()
	}
}

// RateLimitMiddleware enforces per-actor rate limiting. The actor is the
// authenticated principal when present, the remote address otherwise.
// Limiter errors fail open: a broken limiter must not take the API down.
func RateLimitMiddleware(store LimiterStore, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if p, err := GetPrincipal(r.Context()); err == nil {
				actorID = p.Subject
			}

			allowed, err := store.Allow(r.Context(), actorID, policy, 1)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				retryAfter := 60 / policy.RPM
				if retryAfter < 1 {
					retryAfter = 1
				}
				problem.WriteTooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
