package model

import "context"

// Message is a rendered digest ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages. The engine does not choose transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
