package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/msghub/internal/models"
)

var bucketRateLimits = []byte("rate_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal       Level = "global"
	LevelOrganization Level = "organization"
	LevelChannel      Level = "organization_channel"
)

// Config contains rate limit configuration
type Config struct {
	// Global limits across all organizations
	Global *LimitConfig `yaml:"global,omitempty"`

	// Default limits for organizations without specific config
	DefaultOrganization *LimitConfig `yaml:"default_organization,omitempty"`

	// Default limits for one channel of one organization
	DefaultChannel *LimitConfig `yaml:"default_channel,omitempty"`

	// Per-organization overrides of DefaultOrganization
	Organizations map[string]*LimitConfig `yaml:"organizations,omitempty"`

	// Persistence settings
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LimitConfig contains rate limit values
type LimitConfig struct {
	MessagesPerHour int `yaml:"messages_per_hour" json:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day" json:"messages_per_day"`
}

// Counter tracks rate limit counters
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Limiter enforces message quotas at global, organization and channel level
type Limiter struct {
	db       *bolt.DB
	owned    bool
	config   *Config
	counters map[string]*Counter // key -> counter
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Open opens (or creates) a bolt file at path and returns a limiter that
// closes it on Stop
func Open(path string, cfg *Config) (*Limiter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create rate limit directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open rate limit database: %w", err)
	}

	l, err := NewLimiter(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// NewLimiter creates a new rate limiter
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop()

	return l, nil
}

// Allow reserves req.Count messages against every applicable limit.
// Either all counters are incremented or none are.
func (l *Limiter) Allow(ctx context.Context, req *Request) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := &Result{
		Allowed: true,
	}

	n := req.Count
	if n <= 0 {
		n = 1
	}
	now := time.Now()

	checks := l.getChecks(req)

	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)

		l.resetExpiredCounters(counter, now)

		if check.limit.MessagesPerHour > 0 && counter.HourlyCount+n > check.limit.MessagesPerHour {
			result.deny(check, counter.HourStart.Add(time.Hour).Sub(now))
			return result, nil
		}

		if check.limit.MessagesPerDay > 0 && counter.DailyCount+n > check.limit.MessagesPerDay {
			result.deny(check, counter.DayStart.Add(24*time.Hour).Sub(now))
			return result, nil
		}
	}

	// every limit passed, commit the reservation everywhere
	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount += n
		counter.DailyCount += n
	}

	return result, nil
}

// Release returns n previously reserved messages, e.g. when a dispatch
// is rejected after the reservation
func (l *Limiter) Release(ctx context.Context, req *Request) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := req.Count
	if n <= 0 {
		n = 1
	}
	for _, check := range l.getChecks(req) {
		counter, ok := l.counters[check.key]
		if !ok {
			continue
		}
		counter.HourlyCount = max(counter.HourlyCount-n, 0)
		counter.DailyCount = max(counter.DailyCount-n, 0)
	}
}

// GetStats returns the live counters of one level/key together with the
// limits that apply to it. Expired windows read as zero.
func (l *Limiter) GetStats(ctx context.Context, level Level, key string) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{Level: level, Key: key}
	if limit := l.limitFor(level, key); limit != nil {
		stats.HourlyLimit = limit.MessagesPerHour
		stats.DailyLimit = limit.MessagesPerDay
	}

	counter, ok := l.counters[makeKey(level, key)]
	if !ok {
		return stats, nil
	}

	now := time.Now()
	stats.HourStart = counter.HourStart
	stats.DayStart = counter.DayStart
	if now.Sub(counter.HourStart) < time.Hour {
		stats.HourlyCount = counter.HourlyCount
	}
	if now.Sub(counter.DayStart) < 24*time.Hour {
		stats.DailyCount = counter.DailyCount
	}

	return stats, nil
}

// Stop stops the rate limiter and persists counters
func (l *Limiter) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopCh)
		err = l.persistCounters()
		if l.owned {
			if cerr := l.db.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

// Request contains information about the rate limit request
type Request struct {
	OrganizationID string
	Channel        models.Channel
	Count          int // messages to reserve, 1 when zero
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

func (r *Result) deny(check limitCheck, retryAfter time.Duration) {
	r.Allowed = false
	r.DeniedBy = check.level
	r.DeniedKey = check.key
	r.RetryAfter = retryAfter
}

// Stats is the quota usage of one level/key. Zero limits are unlimited.
type Stats struct {
	Level       Level     `json:"level"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	HourlyLimit int       `json:"hourly_limit"`
	DailyCount  int       `json:"daily_count"`
	DailyLimit  int       `json:"daily_limit"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(req *Request) []limitCheck {
	var checks []limitCheck
	add := func(level Level, key string) {
		if limit := l.limitFor(level, key); limit != nil {
			checks = append(checks, limitCheck{level: level, key: makeKey(level, key), limit: limit})
		}
	}

	add(LevelGlobal, "global")
	if req.OrganizationID == "" {
		return checks
	}
	add(LevelOrganization, req.OrganizationID)
	if req.Channel != "" {
		add(LevelChannel, ChannelKey(req.OrganizationID, req.Channel))
	}

	return checks
}

// limitFor returns the limit of a level/key, nil when none is configured
func (l *Limiter) limitFor(level Level, key string) *LimitConfig {
	switch level {
	case LevelGlobal:
		return l.config.Global
	case LevelOrganization:
		if override, ok := l.config.Organizations[key]; ok && override != nil {
			return override
		}
		return l.config.DefaultOrganization
	case LevelChannel:
		return l.config.DefaultChannel
	}
	return nil
}

// ChannelKey is the stats key of one organization channel
func ChannelKey(orgID string, ch models.Channel) string {
	return orgID + "/" + string(ch)
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{
			HourStart: now,
			DayStart:  now,
		}
		l.counters[key] = counter
	}
	return counter
}

func (l *Limiter) resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Limiter) persistCounters() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
