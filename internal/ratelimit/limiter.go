// Package ratelimit caps how many emails the proxy relays per hour and per
// day, globally and per client address. Counters are persisted in bbolt so a
// restart does not reset the windows.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSendLimits = []byte("send_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal Level = "global"
	LevelClient Level = "client"
)

// Config contains rate limit configuration. A nil limit disables that level.
type Config struct {
	Global        *Limit
	PerClient     *Limit
	FlushInterval time.Duration
}

// Limit contains rate limit values. Zero means unlimited.
type Limit struct {
	SendsPerHour int `json:"sends_per_hour"`
	SendsPerDay  int `json:"sends_per_day"`
}

// Counter tracks sends within the current windows
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	RetryAfter time.Duration
}

// Limiter implements send rate limiting
type Limiter struct {
	db       *bolt.DB
	config   Config
	counters map[string]*Counter
	mu       sync.Mutex
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a new rate limiter and starts background persistence
func NewLimiter(db *bolt.DB, cfg Config) (*Limiter, error) {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSendLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create send limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop()

	return l, nil
}

// Allow reports whether one more send from clientIP is allowed and, if so,
// counts it.
func (l *Limiter) Allow(ctx context.Context, clientIP string) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.checks(clientIP)

	for _, check := range checks {
		counter := l.counter(check.key, now)

		if check.limit.SendsPerHour > 0 && counter.HourlyCount >= check.limit.SendsPerHour {
			return &Result{
				DeniedBy:   check.level,
				RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
			}
		}
		if check.limit.SendsPerDay > 0 && counter.DailyCount >= check.limit.SendsPerDay {
			return &Result{
				DeniedBy:   check.level,
				RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
			}
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
	}

	return &Result{Allowed: true}
}

// Stop stops background persistence and writes the counters one last time
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return l.persistCounters()
}

type limitCheck struct {
	level Level
	key   string
	limit *Limit
}

func (l *Limiter) checks(clientIP string) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "all"),
			limit: l.config.Global,
		})
	}
	if clientIP != "" && l.config.PerClient != nil {
		checks = append(checks, limitCheck{
			level: LevelClient,
			key:   makeKey(LevelClient, clientIP),
			limit: l.config.PerClient,
		})
	}

	return checks
}

// counter returns the counter for key with expired windows reset
func (l *Limiter) counter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{HourStart: now, DayStart: now}
		l.counters[key] = counter
	}
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
	return counter
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSendLimits).ForEach(func(k, v []byte) error {
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
	l.mu.Lock()
	snapshot := make(map[string][]byte, len(l.counters))
	for key, counter := range l.counters {
		data, err := json.Marshal(counter)
		if err != nil {
			continue
		}
		snapshot[key] = data
	}
	l.mu.Unlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSendLimits)
		for key, data := range snapshot {
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
