// Package notify is the boundary to the outbound delivery transport. The
// engine only depends on Sender; real deployments plug in an email or SMS
// gateway implementation.
package notify

import (
	"context"
	"log"
)

// Message is a single outbound notification.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	Urgency   string
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the process log instead of delivering them.
// Used in development and as a wiring default when no transport is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("notify: to=%s urgency=%s subject=%q", msg.Recipient, msg.Urgency, msg.Subject)
	return nil
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
