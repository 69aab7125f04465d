package executor

// limiter counts occupied concurrency slots against a ceiling. It is guarded
// by the executor mutex.
type limiter struct {
	max   int
	inUse int
}

func newLimiter(max int) *limiter {
	if max < 1 {
		max = 1
	}
	return &limiter{max: max}
}

func (l *limiter) TryAcquire() bool {
	if l.inUse >= l.max {
		return false
	}
	l.inUse++
	return true
}

func (l *limiter) Release() {
	if l.inUse > 0 {
		l.inUse--
	}
}

func (l *limiter) InUse() int { return l.inUse }

func (l *limiter) Max() int { return l.max }

// Available may be negative after the ceiling was lowered below InUse.
func (l *limiter) Available() int {
	return l.max - l.inUse
}

func (l *limiter) SetMax(n int) {
	if n < 1 {
		n = 1
	}
	l.max = n
}
