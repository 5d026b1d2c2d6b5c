package ratelimit

import (
	"context"
	"sync"
	"time"
)

// loginWindow counts the attempts of one key in one second.
type loginWindow struct {
	second int64
	count  int
}

// MemoryLimiter counts attempts per key in one-second windows held in process memory.
// Keys come from unauthenticated requests, so windows older than the current second are
// swept once per second and the map only holds keys seen in the current window.
type MemoryLimiter struct {
	mu         sync.Mutex
	windows    map[string]*loginWindow
	sweptUntil int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*loginWindow)}
}

// Allow counts one attempt for key in the window of now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	reset := time.Unix(sec+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(sec)

	window := l.windows[key]
	if window == nil || window.second != sec {
		window = &loginWindow{second: sec}
		l.windows[key] = window
	}
	if window.count >= limit {
		return Result{Allowed: false, Reset: reset}, nil
	}
	window.count++
	return Result{Allowed: true, Remaining: limit - window.count, Reset: reset}, nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweep drops windows that ended before sec. Callers hold l.mu.
func (l *MemoryLimiter) sweep(sec int64) {
	if sec <= l.sweptUntil {
		return
	}
	for key, window := range l.windows {
		if window.second < sec {
			delete(l.windows, key)
		}
	}
	l.sweptUntil = sec
}
