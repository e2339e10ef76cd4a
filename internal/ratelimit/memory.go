package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory keeps the attempt log in process. It is exact for a single instance.
type Memory struct {
	cfg      Config
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func NewMemory(cfg Config) (*Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Memory{cfg: cfg, attempts: map[string][]time.Time{}}, nil
}

func (m *Memory) CheckAndRecordAttempt(_ context.Context, key string) (Decision, error) {
	now := m.cfg.now()
	cutoff := now.Add(-m.cfg.Window)
	key = m.cfg.key(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	log := pruneBefore(m.attempts[key], cutoff)

	if len(log) >= m.cfg.Limit {
		m.attempts[key] = log
		return Decision{Allowed: false, Remaining: 0, ResetAt: log[0].Add(m.cfg.Window)}, nil
	}

	log = append(log, now)
	m.attempts[key] = log
	m.gcLocked(cutoff)

	return Decision{
		Allowed:   true,
		Remaining: m.cfg.Limit - len(log),
		ResetAt:   log[0].Add(m.cfg.Window),
	}, nil
}

func (m *Memory) gcLocked(cutoff time.Time) {
	if len(m.attempts) < 1000 {
		return
	}

	for key, log := range m.attempts {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(m.attempts, key)
		}
	}
}

// pruneBefore drops attempts at or before cutoff; log is in insertion order.
func pruneBefore(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append([]time.Time(nil), log[i:]...)
}
