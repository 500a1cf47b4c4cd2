package accident

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yesser147/SafeRide/internal/motion"
	"github.com/yesser147/SafeRide/internal/notify"

	"github.com/pashagolub/pgxmock/v3"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []notify.Kind
	fail  bool
}

func (r *recordingNotifier) SendAlert(_ context.Context, kind notify.Kind, _ notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	if r.fail {
		return errAccident
	}
	return nil
}

func (r *recordingNotifier) sent() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

var errAccident = errors.New("accident error")

func snap(streamID string) Snapshot {
	return Snapshot{
		StreamID:  streamID,
		DangerPct: 92,
		Location:  motion.Location{Lat: -6.2, Lng: 106.8},
		Accel:     motion.Vector3{X: 3.5, Z: 0.4},
		Gyro:      motion.Vector3{Y: 250},
		Contacts:  []string{"+620000000001"},
	}
}

func expectInsert(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery(`INSERT INTO accident_events`).
		WithArgs(pgxmock.AnyArg(), "stream-1", 92.0, -6.2, 106.8, 3.5, 0.0, 0.4, 0.0, 250.0, 0.0, StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
}

func expectUpdate(mock pgxmock.PgxPoolIface, status Status) {
	mock.ExpectExec(`UPDATE accident_events`).
		WithArgs(pgxmock.AnyArg(), status, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestTriggerThenCancel(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	notifier := &recordingNotifier{}
	svc := NewService(mock, nil, notifier, time.Minute, 50*time.Millisecond)

	expectInsert(mock)
	expectUpdate(mock, StatusCancelled)

	resetCalled := false
	evt, err := svc.Trigger(context.Background(), snap("stream-1"), func() { resetCalled = true })
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if evt.Status != StatusPending || evt.ID == "" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if _, active := svc.Active("stream-1"); !active {
		t.Fatalf("expected active event")
	}

	// A second trigger while pending must be a no-op.
	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), "stream-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.ResolvedAt == nil {
		t.Fatalf("unexpected cancelled event %+v", cancelled)
	}
	if !resetCalled {
		t.Fatalf("expected detector reset on resolution")
	}
	if _, active := svc.Active("stream-1"); active {
		t.Fatalf("expected no active event after cancel")
	}

	// No emergency alert on the cancellation path.
	kinds := notifier.sent()
	if len(kinds) != 1 || kinds[0] != notify.KindUserConfirmation {
		t.Fatalf("unexpected alerts %v", kinds)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCooldownBlocksRetrigger(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, nil, &recordingNotifier{}, time.Minute, 60*time.Millisecond)

	expectInsert(mock)
	expectUpdate(mock, StatusCancelled)

	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "stream-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Still latched right after resolution.
	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected cooldown to block re-trigger, got %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	expectInsert(mock)
	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); err != nil {
		t.Fatalf("expected re-arm after cooldown: %v", err)
	}
}

func TestConfirmOnTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	notifier := &recordingNotifier{}
	svc := NewService(mock, nil, notifier, 30*time.Millisecond, time.Minute)

	expectInsert(mock)
	expectUpdate(mock, StatusConfirmed)

	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, active := svc.Active("stream-1"); active {
		t.Fatalf("expected event resolved after window")
	}

	kinds := notifier.sent()
	if len(kinds) != 2 || kinds[0] != notify.KindUserConfirmation || kinds[1] != notify.KindEmergencyAlert {
		t.Fatalf("expected confirmation then exactly one emergency alert, got %v", kinds)
	}

	// A late cancellation after the timer fired must be a no-op.
	if _, err := svc.Cancel(context.Background(), "stream-1"); !errors.Is(err, ErrNoActive) {
		t.Fatalf("expected ErrNoActive, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTriggerPersistFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, nil, &recordingNotifier{}, time.Minute, time.Minute)

	mock.ExpectQuery(`INSERT INTO accident_events`).
		WithArgs(pgxmock.AnyArg(), "stream-1", 92.0, -6.2, 106.8, 3.5, 0.0, 0.4, 0.0, 250.0, 0.0, StatusPending).
		WillReturnError(errAccident)

	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); err == nil {
		t.Fatalf("expected persistence error")
	}
	if _, active := svc.Active("stream-1"); active {
		t.Fatalf("failed persistence must not leave a pending event")
	}

	// Detection may retry on the next qualifying reading.
	expectInsert(mock)
	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
}

func TestCancelWithoutActive(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, nil, &recordingNotifier{}, time.Minute, time.Minute)
	if _, err := svc.Cancel(context.Background(), "stream-x"); !errors.Is(err, ErrNoActive) {
		t.Fatalf("expected ErrNoActive, got %v", err)
	}
}

func TestNotifierFailureDoesNotBlockTransition(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	notifier := &recordingNotifier{fail: true}
	svc := NewService(mock, nil, notifier, 30*time.Millisecond, time.Minute)

	expectInsert(mock)
	expectUpdate(mock, StatusConfirmed)

	evt, err := svc.Trigger(context.Background(), snap("stream-1"), nil)
	if err != nil {
		t.Fatalf("trigger must survive alert failure: %v", err)
	}
	if evt.Status != StatusPending {
		t.Fatalf("expected pending event")
	}

	time.Sleep(100 * time.Millisecond)
	if _, active := svc.Active("stream-1"); active {
		t.Fatalf("confirmation must complete despite alert failure")
	}
}

func TestShutdownStopsTimer(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	notifier := &recordingNotifier{}
	svc := NewService(mock, nil, notifier, 30*time.Millisecond, time.Minute)

	expectInsert(mock)
	if _, err := svc.Trigger(context.Background(), snap("stream-1"), nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	svc.Shutdown("stream-1")
	time.Sleep(80 * time.Millisecond)

	// No confirmation update, no emergency alert after shutdown.
	if kinds := notifier.sent(); len(kinds) != 1 {
		t.Fatalf("expected only confirmation alert, got %v", kinds)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, nil, nil, time.Minute, time.Minute)

	resolved := time.Now()
	mock.ExpectQuery(`SELECT id, stream_id, danger_pct`).
		WithArgs("stream-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "stream_id", "danger_pct", "lat", "lng", "accel_x", "accel_y", "accel_z", "gyro_x", "gyro_y", "gyro_z", "status", "created_at", "resolved_at"}).
			AddRow("acc-1", "stream-1", 92.0, -6.2, 106.8, 3.5, 0.0, 0.4, 0.0, 250.0, 0.0, StatusCancelled, time.Now(), &resolved))

	events, err := svc.List(context.Background(), "stream-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].ID != "acc-1" || events[0].Status != StatusCancelled {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestListQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, nil, nil, time.Minute, time.Minute)

	mock.ExpectQuery(`SELECT id, stream_id, danger_pct`).
		WithArgs("stream-1").
		WillReturnError(errAccident)

	if _, err := svc.List(context.Background(), "stream-1"); err == nil {
		t.Fatalf("expected error")
	}
}
