// Package session manages what-if simulation submissions, the active
// overlay and a short history of recent results.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Simulator computes a simulation result. The detector client satisfies it.
type Simulator interface {
	Simulate(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error)
}

// Manager owns the active simulation and its history.
type Manager struct {
	sim         Simulator
	bus         domain.EventBus
	validate    *validator.Validate
	historySize int

	mu        sync.Mutex
	active    *domain.SimulationResult
	activeSeq uint64
	history   []historyEntry // newest submission first
	issued    uint64 // last sequence handed out
	pending   int
	epoch     uint64 // bumped by Reset
}

type historyEntry struct {
	seq uint64
	res *domain.SimulationResult
}

// NewManager creates a session manager. bus may be nil.
func NewManager(sim Simulator, bus domain.EventBus, historySize int) *Manager {
	if historySize <= 0 {
		historySize = domain.DefaultHistorySize
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Manager{
		sim:         sim,
		bus:         bus,
		validate:    v,
		historySize: historySize,
	}
}

// Submit validates req, sends it to the engine and, on success, records the
// result in history and makes it active. A failed submission leaves the
// active result and history untouched.
//
// Completions can arrive out of order. A result only becomes active when no
// later submission has been activated already; older results are still
// recorded in history at their submission position. A submission that was
// still in flight when Reset ran fails with ErrSuperseded.
func (m *Manager) Submit(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error) {
	req.SenderID = strings.TrimSpace(req.SenderID)
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	req.Timestamp = strings.TrimSpace(req.Timestamp)

	if err := m.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	m.mu.Lock()
	m.issued++
	seq := m.issued
	epoch := m.epoch
	m.pending++
	m.mu.Unlock()

	res, err := m.sim.Simulate(ctx, req)

	m.mu.Lock()
	m.pending--
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if epoch != m.epoch {
		m.mu.Unlock()
		slog.Info("discarding simulation from previous analysis", "simulation_id", res.SimulationID)
		return nil, fmt.Errorf("simulation %s: %w", res.SimulationID, domain.ErrSuperseded)
	}

	m.record(seq, res)

	activated := seq > m.activeSeq
	if activated {
		m.active = res
		m.activeSeq = seq
	}
	m.mu.Unlock()

	slog.Info("simulation completed",
		"simulation_id", res.SimulationID,
		"verdict", res.Verdict,
		"activated", activated,
	)
	m.publish(ctx, domain.TopicSimulationCompleted, res)

	return res, nil
}

// Restore makes a result from history active again without a network call.
func (m *Manager) Restore(simulationID string) (*domain.SimulationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.history {
		if e.res.SimulationID == simulationID {
			m.active = e.res
			m.activeSeq = m.issued
			return e.res, nil
		}
	}
	return nil, fmt.Errorf("simulation %s: %w", simulationID, domain.ErrNotFound)
}

// Clear drops the active overlay but keeps history.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	had := m.active != nil
	m.active = nil
	m.activeSeq = m.issued
	m.mu.Unlock()

	if had {
		m.publish(ctx, domain.TopicSimulationCleared, nil)
	}
}

// Reset drops the active result and the history. Submissions still in flight
// are discarded when they complete.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.active = nil
	m.history = nil
	m.activeSeq = m.issued
	m.epoch++
	m.mu.Unlock()
}

// Active returns the active result, or nil.
func (m *Manager) Active() *domain.SimulationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// History returns recent results ordered by submission, newest first.
func (m *Manager) History() []*domain.SimulationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.SimulationResult, len(m.history))
	for i, e := range m.history {
		out[i] = e.res
	}
	return out
}

// record inserts res at its submission position and trims the oldest
// entries. Caller holds m.mu.
func (m *Manager) record(seq uint64, res *domain.SimulationResult) {
	i := 0
	for i < len(m.history) && m.history[i].seq > seq {
		i++
	}
	m.history = append(m.history, historyEntry{})
	copy(m.history[i+1:], m.history[i:])
	m.history[i] = historyEntry{seq: seq, res: res}
	if len(m.history) > m.historySize {
		m.history = m.history[:m.historySize]
	}
}

// Pending returns the number of submissions awaiting the engine.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *Manager) publish(ctx context.Context, topic string, res *domain.SimulationResult) {
	if m.bus == nil {
		return
	}

	var payload []byte
	if res != nil {
		data, err := json.Marshal(res)
		if err != nil {
			slog.Warn("failed to marshal simulation event", "error", err)
			return
		}
		payload = data
	}

	if err := m.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish simulation event", "topic", topic, "error", err)
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}
