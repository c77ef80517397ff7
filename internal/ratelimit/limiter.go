package ratelimit

import "time"

// BurstFactor is how many seconds' worth of messages a fresh connection may
// send back to back.
const BurstFactor = 2

// MessageLimiter paces the inbound messages of one websocket connection.
//
// It tracks the time at which the connection would be back to an empty
// allowance; a message is admitted while that point lies less than one
// burst window ahead of now. A MessageLimiter belongs to a single read pump
// and is not safe for concurrent use.
type MessageLimiter struct {
	clock    Clock
	interval time.Duration // spacing between messages at the steady rate
	window   time.Duration // interval * burst
	due      time.Time
	dropped  uint64
}

// NewMessageLimiter admits perSecond messages per second with bursts of
// BurstFactor*perSecond. It returns nil when perSecond is not positive;
// a nil limiter admits everything.
func NewMessageLimiter(clock Clock, perSecond int64) *MessageLimiter {
	if perSecond <= 0 {
		return nil
	}
	if clock == nil {
		clock = RealClock{}
	}
	interval := time.Second / time.Duration(perSecond)
	if interval <= 0 {
		interval = 1
	}
	return &MessageLimiter{
		clock:    clock,
		interval: interval,
		window:   interval * time.Duration(BurstFactor*perSecond),
	}
}

// Allow reports whether one more message may be processed now.
func (l *MessageLimiter) Allow() bool {
	if l == nil {
		return true
	}
	now := l.clock.Now()
	due := l.due
	if due.Before(now) {
		due = now
	}
	if due.Sub(now) >= l.window {
		l.dropped++
		return false
	}
	l.due = due.Add(l.interval)
	return true
}

// Dropped is the number of messages Allow has refused.
func (l *MessageLimiter) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.dropped
}
