package accident

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/yesser147/SafeRide/internal/db"
	"github.com/yesser147/SafeRide/internal/notify"
	"github.com/yesser147/SafeRide/internal/stream"

	"github.com/google/uuid"
)

const (
	DefaultConfirmWindow = 30 * time.Second
	DefaultRearmCooldown = 5 * time.Second
)

var (
	// ErrAlreadyActive: a trigger arrived while an event is pending or
	// the re-arm cooldown has not elapsed. Callers treat it as a no-op.
	ErrAlreadyActive = errors.New("accident already active or cooling down")
	// ErrNoActive: cancellation arrived with nothing pending, usually a
	// race against the confirmation timer. Also a no-op.
	ErrNoActive = errors.New("no active accident")
)

// escalation is the per-stream lifecycle guard. All transitions happen
// under mu, so the confirmation timer and a user cancellation can never
// both resolve the same event.
type escalation struct {
	mu      sync.Mutex
	event   *Event
	timer   *time.Timer
	latched bool
	onReset func()
}

// Service owns accident lifecycles across streams: it persists events,
// dispatches alerts, publishes lifecycle transitions on the hub, and
// enforces the single-pending and cooldown invariants.
type Service struct {
	db       db.Querier
	hub      *stream.Hub
	notifier notify.Notifier

	confirmWindow time.Duration
	cooldown      time.Duration

	mu      sync.Mutex
	streams map[string]*escalation
}

func NewService(q db.Querier, hub *stream.Hub, notifier notify.Notifier, confirmWindow, cooldown time.Duration) *Service {
	if confirmWindow <= 0 {
		confirmWindow = DefaultConfirmWindow
	}
	if cooldown <= 0 {
		cooldown = DefaultRearmCooldown
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		db:            q,
		hub:           hub,
		notifier:      notifier,
		confirmWindow: confirmWindow,
		cooldown:      cooldown,
		streams:       map[string]*escalation{},
	}
}

func (s *Service) guard(streamID string) *escalation {
	s.mu.Lock()
	defer s.mu.Unlock()
	esc, ok := s.streams[streamID]
	if !ok {
		esc = &escalation{}
		s.streams[streamID] = esc
	}
	return esc
}

// Trigger moves the stream from Idle to Pending. The event row is
// persisted first; if that fails no timer is armed and the next
// qualifying reading may retry. onReset runs when the event later
// resolves, so the caller can clear its detector state.
func (s *Service) Trigger(ctx context.Context, snap Snapshot, onReset func()) (*Event, error) {
	esc := s.guard(snap.StreamID)

	esc.mu.Lock()
	defer esc.mu.Unlock()

	if esc.event != nil || esc.latched {
		log.Printf("accident trigger ignored on stream %s: %v", snap.StreamID, ErrAlreadyActive)
		return nil, ErrAlreadyActive
	}

	evt := &Event{
		ID:        uuid.NewString(),
		StreamID:  snap.StreamID,
		DangerPct: snap.DangerPct,
		Location:  snap.Location,
		Accel:     snap.Accel,
		Gyro:      snap.Gyro,
		Status:    StatusPending,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO accident_events (id, stream_id, danger_pct, lat, lng, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at
	`, evt.ID, evt.StreamID, evt.DangerPct, evt.Location.Lat, evt.Location.Lng,
		evt.Accel.X, evt.Accel.Y, evt.Accel.Z, evt.Gyro.X, evt.Gyro.Y, evt.Gyro.Z, evt.Status)
	if err := row.Scan(&evt.CreatedAt); err != nil {
		return nil, err
	}

	if err := s.notifier.SendAlert(ctx, notify.KindUserConfirmation, alertFor(evt, snap.Contacts)); err != nil {
		log.Printf("confirmation alert failed for accident %s: %v", evt.ID, err)
	}

	esc.event = evt
	esc.latched = true
	esc.onReset = onReset
	contacts := snap.Contacts
	esc.timer = time.AfterFunc(s.confirmWindow, func() {
		s.confirm(evt.ID, snap.StreamID, contacts)
	})

	if s.hub != nil {
		s.hub.Publish(stream.Event{
			Type:       stream.EventAccidentPending,
			StreamID:   evt.StreamID,
			AccidentID: evt.ID,
			DangerPct:  evt.DangerPct,
		})
	}
	return evt, nil
}

// Cancel resolves the pending event as cancelled. A cancellation that
// loses the race against the confirmation timer is a warned no-op.
func (s *Service) Cancel(ctx context.Context, streamID string) (*Event, error) {
	esc := s.guard(streamID)

	esc.mu.Lock()
	defer esc.mu.Unlock()

	if esc.event == nil {
		log.Printf("accident cancel ignored on stream %s: %v", streamID, ErrNoActive)
		return nil, ErrNoActive
	}

	esc.timer.Stop()
	evt := esc.event
	s.resolveLocked(ctx, esc, evt, StatusCancelled)
	return evt, nil
}

// confirm runs on the escalation timer. If cancellation already won the
// race, the pending event is gone and this is a no-op.
func (s *Service) confirm(eventID, streamID string, contacts []string) {
	esc := s.guard(streamID)

	esc.mu.Lock()
	defer esc.mu.Unlock()

	if esc.event == nil || esc.event.ID != eventID {
		return
	}

	ctx := context.Background()
	evt := esc.event
	s.resolveLocked(ctx, esc, evt, StatusConfirmed)

	if err := s.notifier.SendAlert(ctx, notify.KindEmergencyAlert, alertFor(evt, contacts)); err != nil {
		log.Printf("emergency alert failed for accident %s: %v", evt.ID, err)
	}
}

// resolveLocked completes either resolution path: persist the status,
// publish the transition, clear the active event, reset the caller's
// detector state and start the re-arm cooldown. Persistence failure is
// reported but never blocks the local transition.
func (s *Service) resolveLocked(ctx context.Context, esc *escalation, evt *Event, status Status) {
	now := time.Now()
	evt.Status = status
	evt.ResolvedAt = &now

	_, err := s.db.Exec(ctx, `
		UPDATE accident_events SET status=$2, resolved_at=$3 WHERE id=$1
	`, evt.ID, status, now)
	if err != nil {
		log.Printf("status update failed for accident %s: %v", evt.ID, err)
	}

	if s.hub != nil {
		evtType := stream.EventAccidentCancelled
		if status == StatusConfirmed {
			evtType = stream.EventAccidentConfirmed
		}
		s.hub.Publish(stream.Event{
			Type:       evtType,
			StreamID:   evt.StreamID,
			AccidentID: evt.ID,
			DangerPct:  evt.DangerPct,
		})
	}

	esc.event = nil
	esc.timer = nil
	if esc.onReset != nil {
		esc.onReset()
		esc.onReset = nil
	}

	// The latch outlives the event so residual high scores cannot
	// re-trigger until the cooldown elapses.
	time.AfterFunc(s.cooldown, func() {
		esc.mu.Lock()
		esc.latched = false
		esc.mu.Unlock()
	})
}

// Active returns the pending event for a stream, if any.
func (s *Service) Active(streamID string) (*Event, bool) {
	esc := s.guard(streamID)
	esc.mu.Lock()
	defer esc.mu.Unlock()
	if esc.event == nil {
		return nil, false
	}
	evt := *esc.event
	return &evt, true
}

// Shutdown stops the escalation for a stream that is being torn down,
// leaving any pending event unresolved in storage.
func (s *Service) Shutdown(streamID string) {
	s.mu.Lock()
	esc, ok := s.streams[streamID]
	if ok {
		delete(s.streams, streamID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	esc.mu.Lock()
	defer esc.mu.Unlock()
	if esc.timer != nil {
		esc.timer.Stop()
		esc.timer = nil
	}
	esc.event = nil
}

// List returns the persisted accident history for a stream, newest
// first.
func (s *Service) List(ctx context.Context, streamID string) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, stream_id, danger_pct, lat, lng, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, status, created_at, resolved_at
		FROM accident_events WHERE stream_id=$1
		ORDER BY created_at DESC
	`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.StreamID, &e.DangerPct, &e.Location.Lat, &e.Location.Lng,
			&e.Accel.X, &e.Accel.Y, &e.Accel.Z, &e.Gyro.X, &e.Gyro.Y, &e.Gyro.Z,
			&e.Status, &e.CreatedAt, &e.ResolvedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func alertFor(evt *Event, contacts []string) notify.Alert {
	return notify.Alert{
		AccidentID: evt.ID,
		StreamID:   evt.StreamID,
		Location:   evt.Location,
		DangerPct:  evt.DangerPct,
		Contacts:   contacts,
	}
}
