// Package audit records completed what-if simulations into the repository.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Recorder listens for completed simulations on the event bus and
// persists one audit record per completion.
type Recorder struct {
	bus  domain.EventBus
	repo domain.Repository
	now  func() time.Time

	mu           sync.Mutex
	subscription domain.Subscription
	ctx          context.Context
	cancel       context.CancelFunc
	recorded     uint64
	failed       uint64
}

// NewRecorder creates a recorder. Start must be called to begin recording.
func NewRecorder(bus domain.EventBus, repo domain.Repository) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		bus:    bus,
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to simulation completions.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subscription != nil {
		return nil
	}
	sub, err := r.bus.Subscribe(r.ctx, domain.TopicSimulationCompleted, r.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicSimulationCompleted, err)
	}
	r.subscription = sub

	slog.Info("audit recorder started", "topic", domain.TopicSimulationCompleted)
	return nil
}

func (r *Recorder) handle(ctx context.Context, msg *domain.Message) error {
	var res domain.SimulationResult
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		r.count(false)
		slog.Error("failed to parse simulation event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	rec := Record(&res, r.now())
	if err := r.repo.SaveSimulation(ctx, rec); err != nil {
		r.count(false)
		slog.Error("failed to save simulation record",
			"simulation_id", res.SimulationID,
			"error", err,
		)
		return err
	}
	r.count(true)

	slog.Debug("simulation recorded",
		"record_id", rec.ID,
		"simulation_id", rec.SimulationID,
		"verdict", rec.Verdict,
	)
	return nil
}

// Record builds the audit record for a simulation result.
func Record(res *domain.SimulationResult, at time.Time) *domain.SimulationRecord {
	return &domain.SimulationRecord{
		ID:            uuid.New().String(),
		SimulationID:  res.SimulationID,
		SenderID:      res.HypotheticalTx.SenderID,
		ReceiverID:    res.HypotheticalTx.ReceiverID,
		Amount:        res.HypotheticalTx.Amount,
		Verdict:       res.Verdict,
		VerdictReason: res.VerdictReason,
		Result:        res,
		RecordedAt:    at,
	}
}

func (r *Recorder) count(ok bool) {
	r.mu.Lock()
	if ok {
		r.recorded++
	} else {
		r.failed++
	}
	r.mu.Unlock()
}

// Stop unsubscribes and cancels in-flight handling.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancel()
	if r.subscription == nil {
		return nil
	}
	err := r.subscription.Unsubscribe()
	r.subscription = nil

	slog.Info("audit recorder stopped", "recorded", r.recorded, "failed", r.failed)
	return err
}

// Stats reports recorder activity.
type Stats struct {
	Subscribed bool   `json:"subscribed"`
	Recorded   uint64 `json:"recorded"`
	Failed     uint64 `json:"failed"`
}

// Stats returns current recorder statistics.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Subscribed: r.subscription != nil,
		Recorded:   r.recorded,
		Failed:     r.failed,
	}
}
