package http

import (
	"sync"
	"time"
)

const (
	writeLimit  = 60 // write requests per client per window
	limitWindow = time.Minute
	staleAfter  = 10 * time.Minute
	sweepEvery  = 5 * time.Minute
)

// rateLimiter caps write requests per client IP over a fixed window.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	done    chan struct{}
	once    sync.Once
}

type window struct {
	seen  time.Time
	count int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// allow reports whether the client may issue another write request.
func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w := rl.windows[clientIP]
	if w == nil || now.Sub(w.seen) > limitWindow {
		rl.windows[clientIP] = &window{seen: now, count: 1}
		return true
	}

	w.seen = now
	w.count++
	return w.count <= writeLimit
}

// sweep drops clients that have been quiet long enough that their
// window no longer matters.
func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-staleAfter)
			rl.mu.Lock()
			for ip, w := range rl.windows {
				if w.seen.Before(cutoff) {
					delete(rl.windows, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() {
		close(rl.done)
	})
}
