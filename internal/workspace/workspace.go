// Package workspace holds the loaded analysis and ties the projection, graph,
// simulation session and selection state together.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/projection"
	"github.com/opensource-finance/kestrel/internal/selection"
	"github.com/opensource-finance/kestrel/internal/session"
)

const (
	suggestionNamespace = "suggestions"
	defaultSuggestLimit = 10
	maxSuggestLimit     = 100
)

// Engine is the part of the detection engine the workspace needs.
type Engine interface {
	Analyze(ctx context.Context, filename string, file io.Reader) (*domain.AnalysisResponse, []byte, error)
	Accounts(ctx context.Context) ([]string, error)
}

// Options wires a workspace to its collaborators. Cache and Bus may be nil.
type Options struct {
	Engine        Engine
	Mapper        *projection.Mapper
	Sessions      *session.Manager
	Selection     *selection.State
	Cache         domain.Cache
	Bus           domain.EventBus
	SuggestionTTL time.Duration
}

// loaded is one analysis and everything derived from it.
type loaded struct {
	raw        []byte
	projection *projection.Projection
	filename   string
	loadedAt   time.Time
}

// Workspace is the single-user analysis session.
type Workspace struct {
	engine        Engine
	mapper        *projection.Mapper
	sessions      *session.Manager
	selection     *selection.State
	cache         domain.Cache
	bus           domain.EventBus
	suggestionTTL time.Duration

	mu         sync.RWMutex
	current    *loaded
	generation uint64
	issued     uint64
	swapped    uint64
	analyzing  int
}

// New creates an empty workspace.
func New(opts Options) *Workspace {
	mapper := opts.Mapper
	if mapper == nil {
		mapper = projection.NewMapper()
	}
	sel := opts.Selection
	if sel == nil {
		sel = selection.New()
	}
	ttl := opts.SuggestionTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Workspace{
		engine:        opts.Engine,
		mapper:        mapper,
		sessions:      opts.Sessions,
		selection:     sel,
		cache:         opts.Cache,
		bus:           opts.Bus,
		suggestionTTL: ttl,
	}
}

// LoadResult describes a successfully loaded analysis.
type LoadResult struct {
	Filename           string           `json:"filename"`
	Stats              projection.Stats `json:"stats"`
	Summary            domain.Summary   `json:"summary"`
	ProjectionDuration time.Duration    `json:"-"`
}

// Analyze uploads a file to the engine, projects the response and swaps it in.
// On any failure the previously loaded analysis stays in place. When uploads
// overlap, the most recently started one that succeeds wins.
func (w *Workspace) Analyze(ctx context.Context, filename string, file io.Reader) (*LoadResult, error) {
	w.mu.Lock()
	w.issued++
	seq := w.issued
	w.analyzing++
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.analyzing--
		w.mu.Unlock()
	}()

	resp, raw, err := w.engine.Analyze(ctx, filename, file)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	proj, err := w.mapper.Project(resp)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	w.mu.Lock()
	if seq <= w.swapped {
		w.mu.Unlock()
		slog.Info("discarding superseded analysis", "filename", filename)
		return nil, fmt.Errorf("analysis of %s: %w", filename, domain.ErrSuperseded)
	}
	w.swapped = seq
	w.generation++
	w.current = &loaded{
		raw:        raw,
		projection: proj,
		filename:   filename,
		loadedAt:   time.Now().UTC(),
	}
	gen := w.generation
	w.mu.Unlock()

	if w.sessions != nil {
		w.sessions.Reset()
	}
	w.invalidateSuggestions(ctx, gen-1)

	stats := proj.Stats()
	slog.Info("analysis loaded",
		"filename", filename,
		"accounts", stats.Accounts,
		"rings", stats.Rings,
		"transactions", stats.Transactions,
		"projection_ms", elapsed.Milliseconds(),
	)
	w.publish(ctx, domain.TopicAnalysisLoaded, map[string]any{
		"filename": filename,
		"stats":    stats,
	})

	return &LoadResult{
		Filename:           filename,
		Stats:              stats,
		Summary:            proj.Summary,
		ProjectionDuration: elapsed,
	}, nil
}

// Reset clears the analysis, the simulation session and the selection.
func (w *Workspace) Reset(ctx context.Context) {
	w.mu.Lock()
	w.current = nil
	w.swapped = w.issued
	w.generation++
	gen := w.generation
	w.mu.Unlock()

	if w.sessions != nil {
		w.sessions.Reset()
	}
	w.selection.Reset()
	w.invalidateSuggestions(ctx, gen-1)

	slog.Info("workspace reset")
	w.publish(ctx, domain.TopicWorkspaceReset, nil)
}

// Projection returns the loaded projection.
func (w *Workspace) Projection() (*projection.Projection, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.current == nil {
		return nil, domain.ErrNoAnalysis
	}
	return w.current.projection, nil
}

// Account returns one projected account.
func (w *Workspace) Account(id string) (domain.Account, error) {
	proj, err := w.Projection()
	if err != nil {
		return domain.Account{}, err
	}
	acct, ok := proj.Account(id)
	if !ok {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return acct, nil
}

// Graph builds the element list and composites the active simulation on top.
func (w *Workspace) Graph(f graph.Filter) ([]domain.Element, error) {
	proj, err := w.Projection()
	if err != nil {
		return nil, err
	}

	elements := graph.Build(proj.Accounts, proj.Transactions, f)

	var active *domain.SimulationResult
	if w.sessions != nil {
		active = w.sessions.Active()
	}
	return graph.Overlay(elements, active), nil
}

// Export writes the engine's analysis bytes exactly as received.
func (w *Workspace) Export(out io.Writer) error {
	w.mu.RLock()
	cur := w.current
	w.mu.RUnlock()
	if cur == nil {
		return domain.ErrNoAnalysis
	}
	if _, err := out.Write(cur.raw); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// Suggestions returns account ids starting with prefix, case-insensitively.
// The engine's account list is cached per analysis. Failures degrade to an
// empty list.
func (w *Workspace) Suggestions(ctx context.Context, prefix string, limit int) []string {
	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	if limit > maxSuggestLimit {
		limit = maxSuggestLimit
	}

	w.mu.RLock()
	hasAnalysis := w.current != nil
	gen := w.generation
	w.mu.RUnlock()
	if !hasAnalysis {
		return []string{}
	}

	ids, err := w.accountIDs(ctx, gen)
	if err != nil {
		slog.Warn("account suggestions unavailable", "error", err)
		return []string{}
	}

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := make([]string, 0, limit)
	for _, id := range ids {
		if strings.HasPrefix(strings.ToLower(id), prefix) {
			out = append(out, id)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func (w *Workspace) accountIDs(ctx context.Context, gen uint64) ([]string, error) {
	key := suggestionKey(gen)

	if w.cache != nil {
		data, err := w.cache.Get(ctx, suggestionNamespace, key)
		if err != nil {
			slog.Debug("suggestion cache read failed", "error", err)
		} else if data != nil {
			var ids []string
			if err := json.Unmarshal(data, &ids); err == nil {
				return ids, nil
			}
		}
	}

	ids, err := w.engine.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	if w.cache != nil {
		if data, err := json.Marshal(ids); err == nil {
			if err := w.cache.Set(ctx, suggestionNamespace, key, data, w.suggestionTTL); err != nil {
				slog.Debug("suggestion cache write failed", "error", err)
			}
		}
	}
	return ids, nil
}

func (w *Workspace) invalidateSuggestions(ctx context.Context, gen uint64) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Delete(ctx, suggestionNamespace, suggestionKey(gen)); err != nil {
		slog.Debug("suggestion cache invalidation failed", "error", err)
	}
}

func suggestionKey(gen uint64) string {
	return fmt.Sprintf("accounts:%d", gen)
}

// Status reports what is loading and what is loaded.
type Status struct {
	Analyzing          bool       `json:"analyzing"`
	PendingSimulations int        `json:"pendingSimulations"`
	HasAnalysis        bool       `json:"hasAnalysis"`
	Filename           string     `json:"filename,omitempty"`
	LoadedAt           *time.Time `json:"loadedAt,omitempty"`
	ActiveSimulation   string     `json:"activeSimulation,omitempty"`
}

// Status returns the loading indication for the rendering surface.
func (w *Workspace) Status() Status {
	w.mu.RLock()
	st := Status{
		Analyzing:   w.analyzing > 0,
		HasAnalysis: w.current != nil,
	}
	if w.current != nil {
		st.Filename = w.current.filename
		at := w.current.loadedAt
		st.LoadedAt = &at
	}
	w.mu.RUnlock()

	if w.sessions != nil {
		st.PendingSimulations = w.sessions.Pending()
		if active := w.sessions.Active(); active != nil {
			st.ActiveSimulation = active.SimulationID
		}
	}
	return st
}

// Sessions returns the simulation session manager.
func (w *Workspace) Sessions() *session.Manager {
	return w.sessions
}

// Selection returns the selection and hover state.
func (w *Workspace) Selection() *selection.State {
	return w.selection
}

func (w *Workspace) publish(ctx context.Context, topic string, payload any) {
	if w.bus == nil {
		return
	}
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			slog.Warn("failed to marshal workspace event", "topic", topic, "error", err)
			return
		}
	}
	if err := w.bus.Publish(ctx, topic, data); err != nil {
		slog.Warn("failed to publish workspace event", "topic", topic, "error", err)
	}
}
