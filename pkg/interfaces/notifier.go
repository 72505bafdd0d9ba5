package interfaces

import "context"

// Notifier pushes named events to connected sessions. Delivery is best effort:
// a failure on one session is logged and never aborts delivery to the others,
// and never surfaces as an error here. Errors are reserved for failures of the
// channel itself (unencodable payload, cancelled context).
type Notifier interface {
	// BroadcastAll delivers to every connected session. No sessions is a no-op.
	BroadcastAll(ctx context.Context, event string, args ...any) error

	// SendToPrincipal delivers to every session of one principal and to no
	// other. A principal with no sessions is a no-op.
	SendToPrincipal(ctx context.Context, principal string, event string, args ...any) error
}
