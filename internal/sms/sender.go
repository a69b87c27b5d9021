// Package sms delivers one-time codes to phones. Senders are composed:
// Async(Breaker(AMQP)) in production, Log in development.
package sms

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Sender delivers a code to a phone number
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, phone, code string) error

func (f SenderFunc) SendOTP(ctx context.Context, phone, code string) error { return f(ctx, phone, code) }

// LogSender writes the code to the log instead of sending it
type LogSender struct {
	log        *zap.Logger
	revealCode bool
}

// NewLogSender creates a LogSender. The code itself is only logged when
// revealCode is true.
func NewLogSender(log *zap.Logger, revealCode bool) *LogSender {
	return &LogSender{log: log, revealCode: revealCode}
}

func (s *LogSender) SendOTP(_ context.Context, phone, code string) error {
	fields := []zap.Field{zap.String("phone", phone)}
	if s.revealCode {
		fields = append(fields, zap.String("otp", code))
	}
	s.log.Info("sending otp", fields...)
	return nil
}

// BreakerSender stops calling next after repeated failures
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings configures the circuit breaker
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// NewBreakerSender wraps next with a circuit breaker
func NewBreakerSender(next Sender, settings BreakerSettings, log *zap.Logger) *BreakerSender {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        "sms",
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &BreakerSender{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (s *BreakerSender) SendOTP(ctx context.Context, phone, code string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.SendOTP(ctx, phone, code)
	})
	return err
}

// AsyncSender hands the code to next on its own goroutine and returns
// immediately. Failures are only logged.
type AsyncSender struct {
	next    Sender
	timeout time.Duration
	log     *zap.Logger
}

// NewAsyncSender wraps next for fire-and-forget delivery
func NewAsyncSender(next Sender, timeout time.Duration, log *zap.Logger) *AsyncSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncSender{next: next, timeout: timeout, log: log}
}

func (s *AsyncSender) SendOTP(ctx context.Context, phone, code string) error {
	// detached from the request so delivery outlives the response
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	go func() {
		defer cancel()
		if err := s.next.SendOTP(ctx, phone, code); err != nil {
			s.log.Error("otp delivery failed", zap.String("phone", phone), zap.Error(err))
		}
	}()
	return nil
}
