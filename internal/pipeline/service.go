package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/yesser147/SafeRide/internal/accident"
	"github.com/yesser147/SafeRide/internal/config"
	"github.com/yesser147/SafeRide/internal/db"
	"github.com/yesser147/SafeRide/internal/detector"
	"github.com/yesser147/SafeRide/internal/monitor"
	"github.com/yesser147/SafeRide/internal/motion"
	"github.com/yesser147/SafeRide/internal/stream"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	readingQueueSize = 256
	latestReadingTTL = 30 * time.Second
)

var (
	ErrUnknownStream = errors.New("unknown stream")
	// ErrQueueFull: the reading queue is saturated. The reading is
	// dropped rather than processed out of order.
	ErrQueueFull = errors.New("reading queue full")
)

// owner is the exclusive holder of one stream's mutable pipeline
// state. All readings pass through its single consumer goroutine, so
// the smoother and detector only ever see in-order updates.
type owner struct {
	id       string
	contacts []string

	smoother *motion.Smoother
	det      *detector.Detector
	mon      *monitor.Monitor

	readings chan motion.Reading
	cancel   context.CancelFunc

	mu          sync.RWMutex
	orientation motion.Orientation
	danger      float64
	last        *motion.Reading
}

// Service manages the set of monitored streams: registration,
// ingestion, state snapshots and the UI collaborator calls.
type Service struct {
	db        db.Querier
	redis     *redis.Client
	hub       *stream.Hub
	accidents *accident.Service
	cfg       config.Config

	mu     sync.RWMutex
	owners map[string]*owner
}

func NewService(q db.Querier, redisClient *redis.Client, hub *stream.Hub, accidents *accident.Service, cfg config.Config) *Service {
	return &Service{
		db:        q,
		redis:     redisClient,
		hub:       hub,
		accidents: accidents,
		cfg:       cfg,
		owners:    map[string]*owner{},
	}
}

// Register persists the stream and starts its pipeline owner.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Stream, error) {
	profile, ok := detector.ParseProfile(req.VehicleType)
	if !ok {
		return Stream{}, errors.New("vehicle_type must be scooter or car")
	}

	st := Stream{
		ID:          uuid.NewString(),
		VehicleType: profile,
		Contacts:    req.Contacts,
		Status:      "active",
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO monitor_sessions (id, vehicle_type, contacts, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, st.ID, st.VehicleType, st.Contacts, st.Status)
	if err := row.Scan(&st.CreatedAt); err != nil {
		return Stream{}, err
	}

	o := &owner{
		id:       st.ID,
		contacts: st.Contacts,
		smoother: motion.NewSmoother(s.cfg.SmoothingAlpha),
		det:      detector.New(profile, s.cfg.HistorySize, s.cfg.TriggerThreshold),
		mon:      monitor.New(time.Duration(s.cfg.StaleAfterMS) * time.Millisecond),
		readings: make(chan motion.Reading, readingQueueSize),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	s.mu.Lock()
	s.owners[st.ID] = o
	s.mu.Unlock()

	if warm, ok := s.latestFromCache(ctx, st.ID); ok {
		o.process(runCtx, s, warm)
	}

	go o.run(runCtx, s)
	return st, nil
}

// Ingest enqueues a reading for the stream's consumer. Never processes
// inline: ordering is only guaranteed through the queue.
func (s *Service) Ingest(streamID string, r motion.Reading) error {
	o, ok := s.owner(streamID)
	if !ok {
		return ErrUnknownStream
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	select {
	case o.readings <- r:
		return nil
	default:
		return ErrQueueFull
	}
}

// State returns the display snapshot for a stream.
func (s *Service) State(streamID string) (State, error) {
	o, ok := s.owner(streamID)
	if !ok {
		return State{}, ErrUnknownStream
	}

	o.mu.RLock()
	st := State{
		StreamID:    streamID,
		VehicleType: o.det.Profile(),
		Orientation: o.orientation,
		DangerPct:   o.danger,
		LastReading: o.last,
	}
	o.mu.RUnlock()

	st.Connected = o.mon.Connected(time.Now())
	if evt, active := s.accidents.Active(streamID); active {
		st.ActiveAccidentID = evt.ID
	}
	return st, nil
}

// ChangeVehicleType switches the detector profile mid-stream, keeping
// accumulated history, and records the change.
func (s *Service) ChangeVehicleType(ctx context.Context, streamID, vehicleType string) error {
	o, ok := s.owner(streamID)
	if !ok {
		return ErrUnknownStream
	}
	profile, valid := detector.ParseProfile(vehicleType)
	if !valid {
		return errors.New("vehicle_type must be scooter or car")
	}

	o.det.SetVehicleType(profile)
	_, err := s.db.Exec(ctx, `
		UPDATE monitor_sessions SET vehicle_type=$2 WHERE id=$1
	`, streamID, profile)
	return err
}

// CancelAccident forwards the user's cancellation to the escalation
// state machine.
func (s *Service) CancelAccident(ctx context.Context, streamID string) (*accident.Event, error) {
	if _, ok := s.owner(streamID); !ok {
		return nil, ErrUnknownStream
	}
	return s.accidents.Cancel(ctx, streamID)
}

// Stop tears down a stream: consumer goroutine, escalation timers and
// the session row.
func (s *Service) Stop(ctx context.Context, streamID string) error {
	s.mu.Lock()
	o, ok := s.owners[streamID]
	if ok {
		delete(s.owners, streamID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrUnknownStream
	}

	o.cancel()
	s.accidents.Shutdown(streamID)

	_, err := s.db.Exec(ctx, `
		UPDATE monitor_sessions SET status=$2 WHERE id=$1
	`, streamID, "stopped")
	return err
}

// Close stops all owners; used on server shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.owners {
		o.cancel()
		delete(s.owners, id)
	}
}

func (s *Service) owner(streamID string) (*owner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[streamID]
	return o, ok
}

func (s *Service) latestFromCache(ctx context.Context, streamID string) (motion.Reading, bool) {
	if s.redis == nil {
		return motion.Reading{}, false
	}
	payload, err := s.redis.Get(ctx, latestKey(streamID)).Bytes()
	if err != nil {
		return motion.Reading{}, false
	}
	var r motion.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return motion.Reading{}, false
	}
	return r, true
}

func (s *Service) cacheLatest(ctx context.Context, streamID string, r motion.Reading) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, latestKey(streamID), payload, latestReadingTTL).Err(); err != nil {
		log.Printf("latest reading cache error: %v", err)
	}
}

func latestKey(streamID string) string {
	return "stream:" + streamID + ":latest"
}

func (o *owner) run(ctx context.Context, s *Service) {
	period := time.Duration(s.cfg.MonitorPeriodMS) * time.Millisecond
	go o.mon.Run(ctx, period, func(connected bool) {
		if s.hub != nil {
			c := connected
			s.hub.Publish(stream.Event{
				Type:      stream.EventConnectivity,
				StreamID:  o.id,
				Connected: &c,
			})
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-o.readings:
			o.process(ctx, s, r)
		}
	}
}

// process runs one reading through the pipeline: smooth, estimate
// orientation, score against history, layer the vehicle override, then
// hand a qualifying result to the escalation state machine.
func (o *owner) process(ctx context.Context, s *Service, r motion.Reading) {
	o.mon.Touch(r.Timestamp)

	smoothed := o.smoother.Apply(r.Accel)
	orientation := motion.Estimate(smoothed)

	o.det.AddReading(r.Accel, r.Gyro, r.Timestamp)
	res := o.det.DetectWithHistory()
	res = detector.ApplyOverride(o.det.Profile(), smoothed.Z, res)

	o.mu.Lock()
	o.orientation = orientation
	o.danger = res.DangerPct
	reading := r
	o.last = &reading
	o.mu.Unlock()

	s.cacheLatest(ctx, o.id, r)

	if !res.IsAccident {
		return
	}

	_, err := s.accidents.Trigger(ctx, accident.Snapshot{
		StreamID:  o.id,
		DangerPct: res.DangerPct,
		Location:  r.Location,
		Accel:     r.Accel,
		Gyro:      r.Gyro,
		Contacts:  o.contacts,
	}, func() {
		o.det.Reset()
		o.smoother.Reset()
	})
	if err != nil && !errors.Is(err, accident.ErrAlreadyActive) {
		log.Printf("accident trigger failed on stream %s: %v", o.id, err)
	}
}
