package projection

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedMapper() *Mapper {
	return &Mapper{Now: func() time.Time { return fixedNow }}
}

const twoNodeResponse = `{
	"suspicious_accounts": [
		{"account_id": "A", "suspicion_score": 80, "detected_patterns": ["cycle_length_3"], "ring_id": "R1"}
	],
	"fraud_rings": [
		{"ring_id": "R1", "pattern_type": "cycle", "member_accounts": ["A"], "member_count": 1, "risk_score": 90}
	],
	"summary": {"total_accounts_analyzed": 2, "fraud_rings_detected": 1},
	"graph": {
		"nodes": [
			{"id": "A", "suspicious": true, "suspicion_score": 80, "in_degree": 0, "out_degree": 5, "total_volume": 1000, "transaction_count": 5},
			{"id": "B", "suspicious": false, "suspicion_score": 10, "in_degree": 5, "out_degree": 0, "total_volume": 1000, "transaction_count": 5}
		],
		"edges": [
			{"source": "A", "target": "B", "suspicious": true, "total_amount": 1000, "count": 5}
		]
	}
}`

func mustProject(t *testing.T, raw string) *Projection {
	t.Helper()
	resp, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, err := fixedMapper().Project(resp)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	return p
}

func TestProjectTwoNodeScenario(t *testing.T) {
	p := mustProject(t, twoNodeResponse)

	a, ok := p.Account("A")
	if !ok {
		t.Fatal("account A missing")
	}
	b, ok := p.Account("B")
	if !ok {
		t.Fatal("account B missing")
	}

	t.Run("RingBadge", func(t *testing.T) {
		if a.RingID != "R1" {
			t.Errorf("expected A in R1, got %q", a.RingID)
		}
		if b.RingID != "" {
			t.Errorf("expected B without ring, got %q", b.RingID)
		}
	})

	t.Run("Connections", func(t *testing.T) {
		wantA := []domain.Connection{{TargetID: "B", Direction: domain.DirectionOut, Amount: 1000}}
		if !reflect.DeepEqual(a.Connections, wantA) {
			t.Errorf("A connections = %+v, want %+v", a.Connections, wantA)
		}
		wantB := []domain.Connection{{TargetID: "A", Direction: domain.DirectionIn, Amount: 1000}}
		if !reflect.DeepEqual(b.Connections, wantB) {
			t.Errorf("B connections = %+v, want %+v", b.Connections, wantB)
		}
	})

	t.Run("NetworkStats", func(t *testing.T) {
		if a.NetworkStats.TotalOut != 1000 || a.NetworkStats.TotalIn != 0 {
			t.Errorf("unexpected A stats: %+v", a.NetworkStats)
		}
		if b.NetworkStats.TotalIn != 1000 || b.NetworkStats.TotalOut != 0 {
			t.Errorf("unexpected B stats: %+v", b.NetworkStats)
		}
		if a.NetworkStats.TxCount != 1 {
			t.Errorf("expected A txCount 1, got %d", a.NetworkStats.TxCount)
		}
	})

	t.Run("Patterns", func(t *testing.T) {
		if !reflect.DeepEqual(a.Patterns, []string{"cycle_length_3"}) {
			t.Errorf("unexpected A patterns: %v", a.Patterns)
		}
		if b.Patterns == nil || len(b.Patterns) != 0 {
			t.Errorf("expected empty non-nil patterns for B, got %#v", b.Patterns)
		}
	})

	t.Run("BehavioralDNA", func(t *testing.T) {
		wantA := domain.BehavioralDNA{Velocity: 20, AmtVariance: 0, FanSymmetry: 100, TemporalCluster: 64, HopDepth: 92, AmtDecay: 100}
		if a.BehavioralDNA != wantA {
			t.Errorf("A dna = %+v, want %+v", a.BehavioralDNA, wantA)
		}
		wantB := domain.BehavioralDNA{Velocity: 20, AmtVariance: 0, FanSymmetry: 100, TemporalCluster: 8, HopDepth: 3, AmtDecay: 0}
		if b.BehavioralDNA != wantB {
			t.Errorf("B dna = %+v, want %+v", b.BehavioralDNA, wantB)
		}
	})

	t.Run("Rings", func(t *testing.T) {
		if len(p.Rings) != 1 {
			t.Fatalf("expected 1 ring, got %d", len(p.Rings))
		}
		r := p.Rings[0]
		if r.PatternType != domain.PatternCircularLoop {
			t.Errorf("expected Circular Loop, got %q", r.PatternType)
		}
		if r.MemberCount != 1 || r.RiskScore != 90 {
			t.Errorf("unexpected ring: %+v", r)
		}
	})

	t.Run("Transactions", func(t *testing.T) {
		if len(p.Transactions) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(p.Transactions))
		}
		tx := p.Transactions[0]
		if tx.ID != "TX-000001" {
			t.Errorf("unexpected id %q", tx.ID)
		}
		if !tx.IsFraud || tx.Count != 5 || tx.Amount != 1000 {
			t.Errorf("unexpected transaction: %+v", tx)
		}
		if !tx.Timestamp.Equal(fixedNow) {
			t.Errorf("expected clock timestamp, got %v", tx.Timestamp)
		}
	})
}

func TestConnectionSymmetry(t *testing.T) {
	resp := &domain.AnalysisResponse{
		Summary: &domain.Summary{},
		Graph: &domain.GraphPayload{
			Nodes: []domain.GraphNode{{ID: "A"}, {ID: "B"}, {ID: "C"}},
			Edges: []domain.GraphEdge{
				{Source: "A", Target: "B", TotalAmount: 10},
				{Source: "B", Target: "C", TotalAmount: 20},
				{Source: "C", Target: "A", TotalAmount: 30},
				{Source: "A", Target: "C", TotalAmount: 40},
			},
		},
	}
	p, err := fixedMapper().Project(resp)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	for _, tx := range p.Transactions {
		src, _ := p.Account(tx.Source)
		dst, _ := p.Account(tx.Target)

		if !hasConnection(src.Connections, tx.Target, domain.DirectionOut, tx.Amount) {
			t.Errorf("%s missing out connection to %s", tx.Source, tx.Target)
		}
		if !hasConnection(dst.Connections, tx.Source, domain.DirectionIn, tx.Amount) {
			t.Errorf("%s missing in connection from %s", tx.Target, tx.Source)
		}
	}

	total := 0
	for _, a := range p.Accounts {
		total += len(a.Connections)
	}
	if total != 2*len(resp.Graph.Edges) {
		t.Errorf("expected %d connections, got %d", 2*len(resp.Graph.Edges), total)
	}

	a, _ := p.Account("A")
	if a.NetworkStats.TotalOut != 50 || a.NetworkStats.TotalIn != 30 {
		t.Errorf("unexpected A totals: %+v", a.NetworkStats)
	}
}

func hasConnection(conns []domain.Connection, target string, dir domain.Direction, amount float64) bool {
	for _, c := range conns {
		if c.TargetID == target && c.Direction == dir && c.Amount == amount {
			return true
		}
	}
	return false
}

func TestScoreBounds(t *testing.T) {
	resp := &domain.AnalysisResponse{
		SuspiciousAccounts: []domain.SuspiciousAccount{
			{AccountID: "HIGH", SuspicionScore: 250},
		},
		FraudRings: []domain.RingPayload{
			{RingID: "R1", PatternType: "fan_in", MemberAccounts: []string{"HIGH"}, RiskScore: 140},
		},
		Summary: &domain.Summary{},
		Graph: &domain.GraphPayload{
			Nodes: []domain.GraphNode{
				{ID: "HIGH", SuspicionScore: 10, InDegree: 3, TransactionCount: 900, TotalVolume: 5e9},
				{ID: "LOW", SuspicionScore: -20, OutDegree: 2, TotalVolume: -400},
			},
			Edges: []domain.GraphEdge{{Source: "LOW", Target: "HIGH", TotalAmount: 1e9}},
		},
	}
	p, err := fixedMapper().Project(resp)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	for _, a := range p.Accounts {
		if a.SuspicionScore < 0 || a.SuspicionScore > 100 {
			t.Errorf("%s score out of range: %v", a.ID, a.SuspicionScore)
		}
		dna := a.BehavioralDNA
		for name, v := range map[string]int{
			"velocity":        dna.Velocity,
			"amtVariance":     dna.AmtVariance,
			"fanSymmetry":     dna.FanSymmetry,
			"temporalCluster": dna.TemporalCluster,
			"hopDepth":        dna.HopDepth,
			"amtDecay":        dna.AmtDecay,
		} {
			if v < 0 || v > 100 {
				t.Errorf("%s %s out of range: %d", a.ID, name, v)
			}
		}
	}

	high, _ := p.Account("HIGH")
	if high.SuspicionScore != 100 {
		t.Errorf("expected suspicious-account score clamped to 100, got %v", high.SuspicionScore)
	}
	low, _ := p.Account("LOW")
	if low.SuspicionScore != 0 {
		t.Errorf("expected node score clamped to 0, got %v", low.SuspicionScore)
	}
	if p.Rings[0].RiskScore != 100 {
		t.Errorf("expected ring risk clamped to 100, got %v", p.Rings[0].RiskScore)
	}
}

func TestRingUniqueness(t *testing.T) {
	resp := &domain.AnalysisResponse{
		FraudRings: []domain.RingPayload{
			{RingID: "R1", PatternType: "cycle", MemberAccounts: []string{"A", "B"}},
			{RingID: "R2", PatternType: "fan_out", MemberAccounts: []string{"B", "C"}},
			{RingID: "R3", PatternType: "round_trip", MemberAccounts: []string{"C"}, MemberCount: 1},
		},
		Summary: &domain.Summary{},
		Graph: &domain.GraphPayload{
			Nodes: []domain.GraphNode{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}},
			Edges: []domain.GraphEdge{},
		},
	}
	p, err := fixedMapper().Project(resp)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	want := map[string]string{"A": "R1", "B": "R1", "C": "R2", "D": ""}
	for id, ring := range want {
		a, _ := p.Account(id)
		if a.RingID != ring {
			t.Errorf("%s: expected ring %q, got %q", id, ring, a.RingID)
		}
	}

	if p.Rings[0].MemberCount != 2 {
		t.Errorf("expected member count fallback to 2, got %d", p.Rings[0].MemberCount)
	}
	if p.Rings[1].PatternType != domain.PatternSmurfingFanOut {
		t.Errorf("unexpected pattern %q", p.Rings[1].PatternType)
	}
	if p.Rings[2].PatternType != "round_trip" {
		t.Errorf("expected raw tag passthrough, got %q", p.Rings[2].PatternType)
	}

	st := p.Stats()
	if st.RingMembers != 3 || st.Rings != 3 || st.RingsByPattern[domain.PatternCircularLoop] != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestProjectIdempotent(t *testing.T) {
	resp, err := Decode([]byte(twoNodeResponse))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := fixedMapper()

	first, err := m.Project(resp)
	if err != nil {
		t.Fatalf("first project: %v", err)
	}
	second, err := m.Project(resp)
	if err != nil {
		t.Fatalf("second project: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("projections of the same response differ")
	}
}

func TestProjectMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"MissingGraph", `{"summary": {}}`},
		{"MissingSummary", `{"graph": {"nodes": [], "edges": []}}`},
		{"MissingNodes", `{"summary": {}, "graph": {"edges": []}}`},
		{"MissingEdges", `{"summary": {}, "graph": {"nodes": []}}`},
		{"NullGraph", `{"summary": {}, "graph": null}`},
		{"EmptyNodeID", `{"summary": {}, "graph": {"nodes": [{"id": ""}], "edges": []}}`},
		{"EdgeWithoutTarget", `{"summary": {}, "graph": {"nodes": [{"id": "A"}], "edges": [{"source": "A"}]}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			p, err := fixedMapper().Project(resp)
			if !errors.Is(err, domain.ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
			if p != nil {
				t.Error("expected no partial projection")
			}
		})
	}

	t.Run("InvalidJSON", func(t *testing.T) {
		if _, err := Decode([]byte(`{"graph":`)); !errors.Is(err, domain.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		p := mustProject(t, `{"summary": {}, "graph": {"nodes": [], "edges": []}}`)
		if len(p.Accounts) != 0 || len(p.Transactions) != 0 {
			t.Errorf("expected empty projection, got %+v", p)
		}
	})
}

func TestDecodeSimulation(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		raw := `{"simulation_id": "sim-1", "verdict": "WARNING", "hypothetical_tx": {"sender_id": "A", "receiver_id": "C", "amount": 500},
			"score_deltas": [{"account_id": "A", "old_score": 80, "new_score": 85, "delta": 5}]}`
		res, err := DecodeSimulation([]byte(raw))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Verdict != domain.VerdictWarning || len(res.ScoreDeltas) != 1 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("UnknownVerdict", func(t *testing.T) {
		raw := `{"verdict": "MAYBE", "hypothetical_tx": {"sender_id": "A", "receiver_id": "C"}}`
		if _, err := DecodeSimulation([]byte(raw)); !errors.Is(err, domain.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("MissingEndpoints", func(t *testing.T) {
		raw := `{"verdict": "CLEAN", "hypothetical_tx": {"sender_id": "A"}}`
		if _, err := DecodeSimulation([]byte(raw)); !errors.Is(err, domain.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{2.5, 3},
		{2.49, 2},
		{0.5, 1},
		{-0.5, 0},
		{-1.5, -1},
		{99.5, 100},
		{1e20, 1e9},
		{-1e20, -1e9},
		{math.Inf(1), 1e9},
		{math.Inf(-1), -1e9},
		{math.NaN(), 0},
	}
	for _, tc := range tests {
		if got := roundHalfUp(tc.in); got != tc.want {
			t.Errorf("roundHalfUp(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBehavioralDNAExtremeRatios(t *testing.T) {
	dna := behavioralDNA(dnaInput{volume: 0.5, totalOut: 1e20, inDegree: 1, txCount: 1})
	if dna.AmtDecay != 100 {
		t.Errorf("AmtDecay = %d, want 100", dna.AmtDecay)
	}

	dna = behavioralDNA(dnaInput{volume: 0.5, totalOut: -1e20, score: math.Inf(1), inRing: true})
	if dna.AmtDecay != 0 {
		t.Errorf("AmtDecay = %d, want 0", dna.AmtDecay)
	}
	if dna.HopDepth != 100 || dna.TemporalCluster != 100 {
		t.Errorf("HopDepth = %d, TemporalCluster = %d, want 100", dna.HopDepth, dna.TemporalCluster)
	}
}
