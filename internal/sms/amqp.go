package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "mirchi.events"
	OTPRequestedKey = "auth.phone.otp.requested"
)

// OTPRequestedEvent is consumed by the SMS worker
type OTPRequestedEvent struct {
	Phone       string    `json:"phone"`
	OTP         string    `json:"otp"`
	RequestedAt time.Time `json:"requestedAt"`
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type brokerConn interface {
	IsClosed() bool
	Close() error
}

// session is one connection, its confirm-mode channel and the channel's
// confirmation stream
type session struct {
	conn     brokerConn
	ch       publishChannel
	confirms <-chan amqp.Confirmation
}

func (s *session) close() {
	_ = s.ch.Close()
	_ = s.conn.Close()
}

// AMQPSender publishes OTP events to a RabbitMQ topic exchange with
// publisher confirms
type AMQPSender struct {
	exchange    string
	confirmWait time.Duration
	dial        func() (*session, error)

	mu   sync.Mutex
	sess *session
}

// NewAMQPSender dials the broker and declares the exchange
func NewAMQPSender(url, exchange string) (*AMQPSender, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	s := &AMQPSender{
		exchange:    exchange,
		confirmWait: 2 * time.Second,
		dial:        func() (*session, error) { return dialSession(url, exchange) },
	}
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	return s, nil
}

func dialSession(url, exchange string) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	return &session{
		conn:     conn,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (s *AMQPSender) ensureConnected() error {
	if s.sess != nil && !s.sess.conn.IsClosed() {
		return nil
	}
	s.reset()
	sess, err := s.dial()
	if err != nil {
		return err
	}
	s.sess = sess
	return nil
}

// reset drops the session. Confirmations still in flight belong to it and
// are discarded with it.
func (s *AMQPSender) reset() {
	if s.sess != nil {
		s.sess.close()
		s.sess = nil
	}
}

func encodeOTPEvent(phone, code string, at time.Time) ([]byte, error) {
	return json.Marshal(OTPRequestedEvent{Phone: phone, OTP: code, RequestedAt: at.UTC()})
}

// SendOTP publishes the event and waits for the broker ack
func (s *AMQPSender) SendOTP(ctx context.Context, phone, code string) error {
	now := time.Now()
	body, err := encodeOTPEvent(phone, code, now)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnected(); err != nil {
		return err
	}
	sess := s.sess

	// Drain stale confirms so they are not read as this publish's result.
drain:
	for {
		select {
		case _, ok := <-sess.confirms:
			if !ok {
				s.reset()
				return fmt.Errorf("rabbitmq confirm channel closed")
			}
		default:
			break drain
		}
	}

	err = sess.ch.PublishWithContext(ctx, s.exchange, OTPRequestedKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		s.reset()
		return fmt.Errorf("publish failed: %w", err)
	}

	timer := time.NewTimer(s.confirmWait)
	defer timer.Stop()

	select {
	case conf, ok := <-sess.confirms:
		if !ok {
			s.reset()
			return fmt.Errorf("rabbitmq confirm channel closed")
		}
		if !conf.Ack {
			return fmt.Errorf("rabbitmq nack: deliveryTag=%d", conf.DeliveryTag)
		}
		return nil
	case <-timer.C:
		s.reset()
		return fmt.Errorf("rabbitmq publish timeout: key=%s", OTPRequestedKey)
	case <-ctx.Done():
		s.reset()
		return ctx.Err()
	}
}

// Close closes the channel and connection
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}
