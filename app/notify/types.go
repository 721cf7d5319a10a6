package notify

import (
	"context"
)

// Options controls one notifier run
type Options struct {
	MaxNotifications int  `json:"max_notifications"`
	SkipDelivery     bool `json:"skip_delivery"`
}

// Result is the structured outcome of one notifier run
type Result struct {
	Success                bool     `json:"success"`
	NotificationsProcessed int      `json:"notifications_processed"`
	EmailsSent             int      `json:"emails_sent"`
	EmailsFailed           int      `json:"emails_failed"`
	UsersNotified          int      `json:"users_notified"`
	Errors                 []string `json:"errors,omitempty"`
}

// Message is one outbound digest email.
type Message struct {
	To       string
	Subject  string
	TextBody string
}

// Delivery is the provider's acknowledgement of an accepted message.
type Delivery struct {
	MessageID string
}

// Deliverer hands a digest message to the mail provider.
type Deliverer interface {
	Send(ctx context.Context, msg Message) (*Delivery, error)
}
