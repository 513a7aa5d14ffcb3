package email

import (
	"context"
	"fmt"
)

// CompositeSender fans a send out to multiple Senders. The first sender is
// the primary; failures of secondary senders are collected but do not stop
// delivery.
type CompositeSender struct {
	senders []Sender
}

// NewCompositeSender creates a new CompositeSender. Returns the concrete
// type so AddSender can be called during wiring.
func NewCompositeSender(senders ...Sender) *CompositeSender {
	return &CompositeSender{senders: senders}
}

// AddSender appends a sender to the delivery list.
func (cs *CompositeSender) AddSender(sender Sender) {
	cs.senders = append(cs.senders, sender)
}

// Send delivers through every configured sender and reports the first error.
func (cs *CompositeSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(cs.senders) == 0 {
		return fmt.Errorf("no senders configured in CompositeSender")
	}
	var firstErr error
	for _, sender := range cs.senders {
		if err := sender.Send(ctx, to, subject, rawMessage); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
