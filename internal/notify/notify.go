// Package notify sends operator alerts about destructive admin actions.
package notify

import "context"

// Notifier delivers a short text to the operators. Delivery is best effort
// and never blocks the caller for long.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
