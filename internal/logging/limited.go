package logging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limited logs at most one line per interval (plus burst). Lines dropped in
// between are counted and reported on the next line that gets through.
type Limited struct {
	limiter *rate.Limiter
	logf    func(format string, args ...any)

	mu         sync.Mutex
	suppressed uint64
}

func NewLimited(every time.Duration, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	return &Limited{limiter: rate.NewLimiter(rate.Every(every), burst), logf: log.Printf}
}

// Printf reports whether the line was written.
func (l *Limited) Printf(format string, args ...any) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	if !l.limiter.Allow() {
		l.suppressed++
		l.mu.Unlock()
		return false
	}
	n := l.suppressed
	l.suppressed = 0
	l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if n > 0 {
		msg = fmt.Sprintf("%s suppressed=%d", msg, n)
	}
	l.logf("%s", msg)
	return true
}
