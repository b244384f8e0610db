package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quartzlab/emqx-bridge/internal/identity"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/logging"
)

// UserLookup resolves webhook user IDs to accounts.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*identity.User, error)
}

// Reconciler applies broker connect/disconnect events to stored device
// sessions and fans out lifecycle events to its sinks.
type Reconciler struct {
	sessions Repository
	users    UserLookup
	sinks    []Sink
	logger   *logging.Logger
}

// NewReconciler creates a reconciler. Sinks are fixed at construction.
func NewReconciler(sessions Repository, users UserLookup, logger *logging.Logger, sinks ...Sink) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		users:    users,
		sinks:    sinks,
		logger:   logger,
	}
}

// OnConnected records that a client connected as a user.
//
// The bridge's own connection is skipped entirely. An event naming a
// user the bridge does not know is dropped without error: the broker
// already accepted the connection, and failing the webhook would only
// make EMQX redeliver an event we will never act on.
//
// Returns true when this client ID was seen for the first time.
func (r *Reconciler) OnConnected(ctx context.Context, userID, clientID, ip string) (created bool, err error) {
	if userID == identity.BackendUserID {
		return false, nil
	}
	if clientID == "" {
		return false, fmt.Errorf("connect event missing client id")
	}

	if _, err := r.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			r.logger.Warn("connect event for unknown user dropped",
				"user_id", userID, "client_id", clientID)
			return false, nil
		}
		return false, fmt.Errorf("resolving user %s: %w", userID, err)
	}

	created, err = r.sessions.Upsert(ctx, userID, clientID, ip)
	if err != nil {
		return false, fmt.Errorf("reconciling connect: %w", err)
	}

	eventType := EventConnected
	if created {
		eventType = EventFirstSeen
	}
	r.emit(ctx, Event{
		Type:     eventType,
		UserID:   userID,
		ClientID: clientID,
		IP:       ip,
		Time:     time.Now().UTC(),
	})

	return created, nil
}

// OnDisconnected records that a client disconnected.
//
// The update only matches a session still owned by the given user, so
// a late disconnect for a device that reconnected under someone else
// is a no-op. Returns true when a session row was actually changed.
func (r *Reconciler) OnDisconnected(ctx context.Context, userID, clientID, ip string) (updated bool, err error) {
	if userID == identity.BackendUserID {
		return false, nil
	}
	if clientID == "" {
		return false, fmt.Errorf("disconnect event missing client id")
	}

	updated, err = r.sessions.Deactivate(ctx, userID, clientID)
	if err != nil {
		return false, fmt.Errorf("reconciling disconnect: %w", err)
	}

	if updated {
		r.emit(ctx, Event{
			Type:     EventDisconnected,
			UserID:   userID,
			ClientID: clientID,
			IP:       ip,
			Time:     time.Now().UTC(),
		})
	}

	return updated, nil
}

func (r *Reconciler) emit(ctx context.Context, event Event) {
	for _, sink := range r.sinks {
		sink.OnDeviceEvent(ctx, event)
	}
}

// LogSink writes lifecycle events to the structured log. It is always
// registered so every transition leaves a trace even with history
// storage disabled.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink that logs lifecycle events.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// OnDeviceEvent implements Sink.
func (s *LogSink) OnDeviceEvent(_ context.Context, event Event) {
	s.logger.Info("device lifecycle event",
		"type", string(event.Type),
		"user_id", event.UserID,
		"client_id", event.ClientID,
		"ip", event.IP,
	)
}
