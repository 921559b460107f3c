package workspace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/projection"
	"github.com/opensource-finance/kestrel/internal/selection"
	"github.com/opensource-finance/kestrel/internal/session"
)

const analysisJSON = `{
  "suspicious_accounts": [{"account_id": "ACC_A", "suspicion_score": 80, "detected_patterns": ["cycle_length_3"]}],
  "fraud_rings": [{"ring_id": "RING_001", "pattern_type": "cycle", "member_accounts": ["ACC_A"], "member_count": 1, "risk_score": 90}],
  "summary": {"total_accounts_analyzed": 2},
  "graph": {
    "nodes": [{"id": "ACC_A", "suspicion_score": 80, "out_degree": 1}, {"id": "ACC_B", "suspicion_score": 10, "in_degree": 1}],
    "edges": [{"source": "ACC_A", "target": "ACC_B", "suspicious": true, "total_amount": 1000, "count": 2}]
  }
}`

type fakeEngine struct {
	raw          string
	analyzeErr   error
	accounts     []string
	accountsErr  error
	accountCalls atomic.Int32
	analyzeGate  chan struct{}
}

func (f *fakeEngine) Analyze(ctx context.Context, filename string, file io.Reader) (*domain.AnalysisResponse, []byte, error) {
	if f.analyzeGate != nil {
		<-f.analyzeGate
	}
	if f.analyzeErr != nil {
		return nil, nil, f.analyzeErr
	}
	resp, err := projection.Decode([]byte(f.raw))
	if err != nil {
		return nil, nil, err
	}
	return resp, []byte(f.raw), nil
}

func (f *fakeEngine) Accounts(ctx context.Context) ([]string, error) {
	f.accountCalls.Add(1)
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return append([]string(nil), f.accounts...), nil
}

type fakeSimulator struct{}

func (fakeSimulator) Simulate(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error) {
	return &domain.SimulationResult{
		SimulationID:   "sim-" + req.ReceiverID,
		Verdict:        domain.VerdictWarning,
		HypotheticalTx: domain.HypotheticalTx{SenderID: req.SenderID, ReceiverID: req.ReceiverID, Amount: req.Amount},
		ScoreDeltas:    []domain.ScoreDelta{{AccountID: req.SenderID}},
	}, nil
}

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string, h domain.MessageHandler) (domain.Subscription, error) {
	return nil, nil
}
func (b *recordingBus) Ping(ctx context.Context) error { return nil }
func (b *recordingBus) Close() error                   { return nil }

func newWorkspace(engine *fakeEngine, bus domain.EventBus) *Workspace {
	return New(Options{
		Engine:        engine,
		Mapper:        &projection.Mapper{Now: func() time.Time { return time.Unix(0, 0).UTC() }},
		Sessions:      session.NewManager(fakeSimulator{}, nil, 5),
		Selection:     selection.New(),
		Cache:         cache.NewLRUCache(16),
		Bus:           bus,
		SuggestionTTL: time.Minute,
	})
}

func TestNoAnalysis(t *testing.T) {
	ws := newWorkspace(&fakeEngine{raw: analysisJSON}, nil)

	if _, err := ws.Projection(); !errors.Is(err, domain.ErrNoAnalysis) {
		t.Errorf("expected ErrNoAnalysis, got %v", err)
	}
	if _, err := ws.Graph(graph.Filter{}); !errors.Is(err, domain.ErrNoAnalysis) {
		t.Errorf("expected ErrNoAnalysis, got %v", err)
	}
	if err := ws.Export(io.Discard); !errors.Is(err, domain.ErrNoAnalysis) {
		t.Errorf("expected ErrNoAnalysis, got %v", err)
	}
	if got := ws.Suggestions(context.Background(), "", 10); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
}

func TestAnalyze(t *testing.T) {
	bus := &recordingBus{}
	ws := newWorkspace(&fakeEngine{raw: analysisJSON}, bus)
	ctx := context.Background()

	res, err := ws.Analyze(ctx, "transactions.csv", strings.NewReader("csv"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Stats.Accounts != 2 || res.Stats.Rings != 1 || res.Stats.Transactions != 1 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}

	acct, err := ws.Account("ACC_A")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.RingID != "RING_001" {
		t.Errorf("expected ring badge, got %q", acct.RingID)
	}
	if _, err := ws.Account("ACC_Z"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	st := ws.Status()
	if !st.HasAnalysis || st.Analyzing || st.Filename != "transactions.csv" || st.LoadedAt == nil {
		t.Errorf("unexpected status: %+v", st)
	}
	if len(bus.topics) != 1 || bus.topics[0] != domain.TopicAnalysisLoaded {
		t.Errorf("unexpected events: %v", bus.topics)
	}
}

func TestAnalyzeFailureKeepsPrevious(t *testing.T) {
	engine := &fakeEngine{raw: analysisJSON}
	ws := newWorkspace(engine, nil)
	ctx := context.Background()

	if _, err := ws.Analyze(ctx, "first.csv", strings.NewReader("")); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	before, _ := ws.Projection()

	t.Run("EngineError", func(t *testing.T) {
		engine.analyzeErr = &domain.EngineError{Status: 400, Message: "Missing required columns"}
		defer func() { engine.analyzeErr = nil }()

		_, err := ws.Analyze(ctx, "bad.csv", strings.NewReader(""))
		var engineErr *domain.EngineError
		if !errors.As(err, &engineErr) {
			t.Fatalf("expected EngineError, got %v", err)
		}
		if after, _ := ws.Projection(); after != before {
			t.Error("failed analysis replaced the projection")
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		engine.raw = `{"summary": {}}`
		defer func() { engine.raw = analysisJSON }()

		_, err := ws.Analyze(ctx, "bad.csv", strings.NewReader(""))
		if !errors.Is(err, domain.ErrMalformedResponse) {
			t.Fatalf("expected ErrMalformedResponse, got %v", err)
		}
		if after, _ := ws.Projection(); after != before {
			t.Error("malformed analysis replaced the projection")
		}
	})
}

func TestGraphWithSimulation(t *testing.T) {
	ws := newWorkspace(&fakeEngine{raw: analysisJSON}, nil)
	ctx := context.Background()
	if _, err := ws.Analyze(ctx, "t.csv", strings.NewReader("")); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	base, err := ws.Graph(graph.Filter{})
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(base) != 3 {
		t.Fatalf("expected 2 nodes and 1 edge, got %d elements", len(base))
	}

	if _, err := ws.Sessions().Submit(ctx, domain.SimulationRequest{SenderID: "ACC_A", ReceiverID: "ACC_NEW", Amount: 500}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	overlaid, _ := ws.Graph(graph.Filter{})
	if len(overlaid) != 5 {
		t.Errorf("expected sim node and sim edge to be added, got %d elements", len(overlaid))
	}

	ringsOnly, _ := ws.Graph(graph.Filter{RingsOnly: true})
	for _, el := range ringsOnly {
		if el.Data.ID == "ACC_B" {
			t.Error("expected ACC_B filtered out")
		}
	}

	// A new analysis drops the simulation
	if _, err := ws.Analyze(ctx, "t2.csv", strings.NewReader("")); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ws.Sessions().Active() != nil || len(ws.Sessions().History()) != 0 {
		t.Error("expected new analysis to discard simulations")
	}
	after, _ := ws.Graph(graph.Filter{})
	if len(after) != 3 {
		t.Errorf("expected overlay gone, got %d elements", len(after))
	}
}

func TestExportIsByteIdentical(t *testing.T) {
	ws := newWorkspace(&fakeEngine{raw: analysisJSON}, nil)
	if _, err := ws.Analyze(context.Background(), "t.csv", strings.NewReader("")); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var buf bytes.Buffer
	if err := ws.Export(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if buf.String() != analysisJSON {
		t.Error("export differs from engine bytes")
	}
}

func TestReset(t *testing.T) {
	bus := &recordingBus{}
	ws := newWorkspace(&fakeEngine{raw: analysisJSON}, bus)
	ctx := context.Background()

	ws.Analyze(ctx, "t.csv", strings.NewReader(""))
	ws.Sessions().Submit(ctx, domain.SimulationRequest{SenderID: "ACC_A", ReceiverID: "ACC_B", Amount: 1})
	ws.Selection().Select("ACC_A")
	ws.Selection().Hover(selection.Hover{ID: "ACC_B"})

	ws.Reset(ctx)

	if _, err := ws.Projection(); !errors.Is(err, domain.ErrNoAnalysis) {
		t.Error("expected analysis cleared")
	}
	if ws.Sessions().Active() != nil || len(ws.Sessions().History()) != 0 {
		t.Error("expected simulations cleared")
	}
	if snap := ws.Selection().Snapshot(); snap.Selected != "" || snap.Hover != nil {
		t.Errorf("expected selection cleared, got %+v", snap)
	}
	if bus.topics[len(bus.topics)-1] != domain.TopicWorkspaceReset {
		t.Errorf("expected reset event, got %v", bus.topics)
	}
}

func TestSuggestions(t *testing.T) {
	engine := &fakeEngine{raw: analysisJSON, accounts: []string{"ACC_B", "acc_a", "MERCHANT_1", "ACC_C"}}
	ws := newWorkspace(engine, nil)
	ctx := context.Background()
	ws.Analyze(ctx, "t.csv", strings.NewReader(""))

	t.Run("PrefixCaseInsensitive", func(t *testing.T) {
		got := ws.Suggestions(ctx, "acc", 10)
		want := []string{"ACC_B", "ACC_C", "acc_a"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		if got := ws.Suggestions(ctx, "", 2); len(got) != 2 {
			t.Errorf("expected 2 suggestions, got %v", got)
		}
	})

	t.Run("Cached", func(t *testing.T) {
		if engine.accountCalls.Load() != 1 {
			t.Errorf("expected a single engine call, got %d", engine.accountCalls.Load())
		}
	})

	t.Run("InvalidatedByNewAnalysis", func(t *testing.T) {
		engine.accounts = []string{"NEW_1"}
		ws.Analyze(ctx, "t2.csv", strings.NewReader(""))
		got := ws.Suggestions(ctx, "new", 10)
		if !reflect.DeepEqual(got, []string{"NEW_1"}) {
			t.Errorf("expected fresh account list, got %v", got)
		}
	})

	t.Run("EngineFailure", func(t *testing.T) {
		engine.accountsErr = &domain.EngineError{Status: 500, Message: "Internal Server Error"}
		ws.Analyze(ctx, "t3.csv", strings.NewReader(""))
		got := ws.Suggestions(ctx, "", 10)
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil list, got %#v", got)
		}
	})
}

func TestStatusWhileAnalyzing(t *testing.T) {
	gate := make(chan struct{})
	ws := newWorkspace(&fakeEngine{raw: analysisJSON, analyzeGate: gate}, nil)

	done := make(chan error)
	go func() {
		_, err := ws.Analyze(context.Background(), "t.csv", strings.NewReader(""))
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !ws.Status().Analyzing {
		if time.Now().After(deadline) {
			t.Fatal("analysis never reported in flight")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if st := ws.Status(); st.Analyzing || !st.HasAnalysis {
		t.Errorf("unexpected status after load: %+v", st)
	}
}

func TestResetSupersedesInFlightAnalysis(t *testing.T) {
	gate := make(chan struct{})
	ws := newWorkspace(&fakeEngine{raw: analysisJSON, analyzeGate: gate}, nil)

	done := make(chan error)
	go func() {
		_, err := ws.Analyze(context.Background(), "t.csv", strings.NewReader(""))
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !ws.Status().Analyzing {
		if time.Now().After(deadline) {
			t.Fatal("analysis never reported in flight")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ws.Reset(context.Background())
	close(gate)

	if err := <-done; !errors.Is(err, domain.ErrSuperseded) {
		t.Errorf("expected ErrSuperseded, got %v", err)
	}
	if _, err := ws.Projection(); !errors.Is(err, domain.ErrNoAnalysis) {
		t.Error("superseded analysis was loaded after reset")
	}
}
