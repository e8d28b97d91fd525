package httpcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter spaces requests to each host by a fixed interval.
type hostLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	hosts    map[string]*rate.Limiter
}

func newHostLimiter(interval time.Duration) *hostLimiter {
	return &hostLimiter{interval: interval, hosts: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *hostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.interval <= 0 || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	l.mu.Lock()
	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.hosts[host] = lim
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}
