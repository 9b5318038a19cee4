package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Kind identifies the notification template the transport layer renders.
type Kind string

const (
	// KindMatch: a mutual like was detected; sent to both parties.
	KindMatch Kind = "match"
	// KindSuperlikeReceived: someone superliked the recipient.
	KindSuperlikeReceived Kind = "superlike_received"
)

// Event is one outbound notification. EventID exists so downstream transports
// can log/trace deliveries; the core never deduplicates on it.
type Event struct {
	EventID string
	UserID  uint64
	Kind    Kind
	Payload map[string]any
}

// NewEvent assigns a fresh event id.
func NewEvent(userID uint64, kind Kind, payload map[string]any) Event {
	return Event{
		EventID: uuid.NewString(),
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
	}
}

// Notifier is the fire-and-forget sink the transport layer implements.
// Delivery is best effort: failures are swallowed at the call site, never
// retried synchronously, and never abort the primary action.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log. It is the default sink in
// development and a safe fallback when no transport is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info("notification",
		"event_id", event.EventID,
		"user_id", event.UserID,
		"kind", string(event.Kind),
		"payload", event.Payload,
	)
	return nil
}
