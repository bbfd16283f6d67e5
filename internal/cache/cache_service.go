// Package cache provides Redis-backed caching for market data with TTL
// semantics and graceful degradation: when Redis is unavailable, callers
// fall through to the upstream providers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrMiss is returned when a key is not present in the cache.
var ErrMiss = errors.New("cache: miss")

// Service wraps a Redis client. A nil *Service is valid and behaves as a
// disabled cache: Get always misses and Set is a no-op.
type Service struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewService connects to Redis using a redis:// URL. The returned service
// starts in degraded mode if the initial ping fails; it recovers on its
// own once Redis becomes reachable.
func NewService(rawURL string, logger zerolog.Logger) (*Service, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	s := &Service{
		client:        redis.NewClient(opts),
		logger:        logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("initial redis connection failed, starting degraded")
		return s, nil
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.logger.Info().Str("addr", opts.Addr).Msg("redis connected")
	return s, nil
}

// Enabled reports whether this service can serve requests at all.
func (s *Service) Enabled() bool { return s != nil }

// IsHealthy reports whether Redis is currently considered reachable.
func (s *Service) IsHealthy() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures {
		if s.healthy {
			s.logger.Warn().Int("failures", s.failureCount).Msg("redis marked unhealthy")
		}
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.logger.Info().Msg("redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

// checkHealth pings Redis in the background once the recovery interval has
// elapsed, so a degraded service can come back without traffic succeeding.
func (s *Service) checkHealth() {
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !shouldCheck {
		return
	}

	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.recordSuccess()
		}
	}()
}

// Get retrieves a value. ErrMiss is returned both for absent keys and for
// a disabled or unhealthy cache, so callers treat all three as a miss.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", ErrMiss
	}
	s.checkHealth()
	if !s.IsHealthy() {
		return "", ErrMiss
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		s.recordFailure()
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	s.recordSuccess()
	return val, nil
}

// Set stores a value with a TTL. Failures are logged, not escalated: a
// missed cache write only costs an extra upstream call later.
func (s *Service) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	s.checkHealth()
	if !s.IsHealthy() {
		return nil
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}
	s.recordSuccess()
	return nil
}

// Delete removes a key.
func (s *Service) Delete(ctx context.Context, key string) error {
	if s == nil || !s.IsHealthy() {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}
	s.recordSuccess()
	return nil
}

// Ping checks Redis connectivity.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("cache disabled")
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.recordFailure()
		return err
	}
	s.recordSuccess()
	return nil
}

// Close closes the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
