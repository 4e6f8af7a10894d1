package agent

import "context"

// Notifier delivers out-of-band messages to a human, typically the
// approval prompt for a gated tool. Delivery is best effort: a send
// failure is logged and the approval still waits for its timeout.
type Notifier interface {
	Send(ctx context.Context, recipientID, content string) error
}
