// Package notify delivers incident notifications to stakeholder channels.
package notify

import "context"

// Color selects the visual accent of a notification.
type Color string

const (
	ColorDanger  Color = "danger"
	ColorWarning Color = "warning"
	ColorInfo    Color = "info"
	ColorGood    Color = "good"
)

// Message is one stakeholder notification.
type Message struct {
	Title    string
	Body     string
	Color    Color
	Priority string
}

// Notifier sends a message to one channel. Implementations distinguish
// retryable from permanent failures via the error types in this package.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
