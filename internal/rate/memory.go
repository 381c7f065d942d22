package rate

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	hits  int64
}

// MemoryLimiter es la misma ventana fija que RedisLimiter, en proceso.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryLimiter(max int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{Max: int64(max), Window: win, Now: time.Now, windows: map[string]*window{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.Now().UTC()
	start := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
		l.gcLocked(start)
	}
	w.hits++
	return result(w.hits, l.Max, start.Add(l.Window).Sub(now), l.Window), nil
}

// gcLocked descarta las ventanas vencidas.
func (l *MemoryLimiter) gcLocked(current time.Time) {
	for k, w := range l.windows {
		if w.start.Before(current) {
			delete(l.windows, k)
		}
	}
}
