// Package projection maps the detection engine's analysis payload into
// accounts, fraud rings and transactions.
package projection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Projection is the full derived view of one analysis response.
// It is built once and never mutated afterwards.
type Projection struct {
	Accounts     []domain.Account     `json:"accounts"`
	Rings        []domain.FraudRing   `json:"rings"`
	Transactions []domain.Transaction `json:"transactions"`
	Summary      domain.Summary       `json:"summary"`

	byID map[string]int
}

// Account looks up a projected account by id.
func (p *Projection) Account(id string) (domain.Account, bool) {
	idx, ok := p.byID[id]
	if !ok {
		return domain.Account{}, false
	}
	return p.Accounts[idx], true
}

// Stats holds counters derived from a projection.
type Stats struct {
	Accounts          int            `json:"accounts"`
	RingMembers       int            `json:"ringMembers"`
	Rings             int            `json:"rings"`
	Transactions      int            `json:"transactions"`
	FraudTransactions int            `json:"fraudTransactions"`
	RingsByPattern    map[string]int `json:"ringsByPattern"`
}

// Stats counts accounts, rings and transactions, with rings grouped by pattern type.
func (p *Projection) Stats() Stats {
	st := Stats{
		Accounts:       len(p.Accounts),
		Rings:          len(p.Rings),
		Transactions:   len(p.Transactions),
		RingsByPattern: make(map[string]int),
	}
	for _, a := range p.Accounts {
		if a.InRing() {
			st.RingMembers++
		}
	}
	for _, r := range p.Rings {
		st.RingsByPattern[r.PatternType]++
	}
	for _, t := range p.Transactions {
		if t.IsFraud {
			st.FraudTransactions++
		}
	}
	return st
}

// Mapper turns analysis responses into projections.
type Mapper struct {
	// Now stamps transactions. The engine has no per-edge time, so the value
	// is a placeholder and must not be used for event-time charts.
	Now func() time.Time
}

// NewMapper creates a mapper that stamps transactions with the wall clock.
func NewMapper() *Mapper {
	return &Mapper{Now: func() time.Time { return time.Now().UTC() }}
}

// Decode parses raw engine JSON into an analysis response.
func Decode(raw []byte) (*domain.AnalysisResponse, error) {
	var resp domain.AnalysisResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return &resp, nil
}

// DecodeSimulation parses and checks a simulation result payload.
func DecodeSimulation(raw []byte) (*domain.SimulationResult, error) {
	var res domain.SimulationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if !res.Verdict.Valid() {
		return nil, fmt.Errorf("%w: unknown verdict %q", domain.ErrMalformedResponse, res.Verdict)
	}
	if res.HypotheticalTx.SenderID == "" || res.HypotheticalTx.ReceiverID == "" {
		return nil, fmt.Errorf("%w: hypothetical transaction has no endpoints", domain.ErrMalformedResponse)
	}
	return &res, nil
}

// Project derives accounts, rings and transactions from resp.
// A response missing required structure fails as a whole.
func (m *Mapper) Project(resp *domain.AnalysisResponse) (*Projection, error) {
	if err := validate(resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if m.Now != nil {
		now = m.Now()
	}

	// 1. Detection-specific fields by account id
	suspicious := make(map[string]*domain.SuspiciousAccount, len(resp.SuspiciousAccounts))
	for i := range resp.SuspiciousAccounts {
		sa := &resp.SuspiciousAccounts[i]
		if _, seen := suspicious[sa.AccountID]; !seen {
			suspicious[sa.AccountID] = sa
		}
	}

	// 2. Ring membership, first ring in enumeration order wins
	ringOf := make(map[string]string)
	rings := make([]domain.FraudRing, 0, len(resp.FraudRings))
	for _, r := range resp.FraudRings {
		for _, member := range r.MemberAccounts {
			if _, ok := ringOf[member]; !ok {
				ringOf[member] = r.RingID
			}
		}
		rings = append(rings, mapRing(r))
	}

	// 3. Connections, one out entry under the source and one in entry under the target
	connections := make(map[string][]domain.Connection)
	transactions := make([]domain.Transaction, 0, len(resp.Graph.Edges))
	for i, e := range resp.Graph.Edges {
		connections[e.Source] = append(connections[e.Source], domain.Connection{
			TargetID:  e.Target,
			Direction: domain.DirectionOut,
			Amount:    e.TotalAmount,
		})
		connections[e.Target] = append(connections[e.Target], domain.Connection{
			TargetID:  e.Source,
			Direction: domain.DirectionIn,
			Amount:    e.TotalAmount,
		})

		transactions = append(transactions, domain.Transaction{
			ID:        TransactionID(i),
			Source:    e.Source,
			Target:    e.Target,
			Amount:    e.TotalAmount,
			IsFraud:   e.Suspicious,
			Count:     e.Count,
			Timestamp: now,
		})
	}

	// 4. One account per graph node
	accounts := make([]domain.Account, 0, len(resp.Graph.Nodes))
	byID := make(map[string]int, len(resp.Graph.Nodes))
	for _, n := range resp.Graph.Nodes {
		if _, dup := byID[n.ID]; dup {
			continue
		}
		byID[n.ID] = len(accounts)
		accounts = append(accounts, mapAccount(n, suspicious[n.ID], ringOf[n.ID], connections[n.ID]))
	}

	return &Projection{
		Accounts:     accounts,
		Rings:        rings,
		Transactions: transactions,
		Summary:      *resp.Summary,
		byID:         byID,
	}, nil
}

// TransactionID formats the zero-padded sequence id of the i-th edge.
func TransactionID(i int) string {
	return fmt.Sprintf("TX-%06d", i+1)
}

func validate(resp *domain.AnalysisResponse) error {
	switch {
	case resp == nil:
		return fmt.Errorf("%w: empty response", domain.ErrMalformedResponse)
	case resp.Graph == nil:
		return fmt.Errorf("%w: missing graph", domain.ErrMalformedResponse)
	case resp.Summary == nil:
		return fmt.Errorf("%w: missing summary", domain.ErrMalformedResponse)
	case resp.Graph.Nodes == nil:
		return fmt.Errorf("%w: missing graph.nodes", domain.ErrMalformedResponse)
	case resp.Graph.Edges == nil:
		return fmt.Errorf("%w: missing graph.edges", domain.ErrMalformedResponse)
	}

	for i, n := range resp.Graph.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: graph node %d has no id", domain.ErrMalformedResponse, i)
		}
	}
	for i, e := range resp.Graph.Edges {
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: graph edge %d has no endpoint", domain.ErrMalformedResponse, i)
		}
	}
	return nil
}

func mapAccount(n domain.GraphNode, sa *domain.SuspiciousAccount, ringID string, conns []domain.Connection) domain.Account {
	score := n.SuspicionScore
	patterns := []string{}
	if sa != nil {
		score = sa.SuspicionScore
		if len(sa.DetectedPatterns) > 0 {
			patterns = append(patterns, sa.DetectedPatterns...)
		}
	}
	score = clampScore(score)

	totalIn, totalOut := decimal.Zero, decimal.Zero
	for _, c := range conns {
		amt := decimal.NewFromFloat(c.Amount)
		if c.Direction == domain.DirectionIn {
			totalIn = totalIn.Add(amt)
		} else {
			totalOut = totalOut.Add(amt)
		}
	}
	stats := domain.NetworkStats{
		TotalIn:  totalIn.InexactFloat64(),
		TotalOut: totalOut.InexactFloat64(),
		TxCount:  len(conns),
	}

	if conns == nil {
		conns = []domain.Connection{}
	}

	return domain.Account{
		ID:               n.ID,
		SuspicionScore:   score,
		InDegree:         nonNegative(n.InDegree),
		OutDegree:        nonNegative(n.OutDegree),
		Volume:           n.TotalVolume,
		TransactionCount: n.TransactionCount,
		Patterns:         patterns,
		RingID:           ringID,
		BehavioralDNA: behavioralDNA(dnaInput{
			inDegree:  nonNegative(n.InDegree),
			outDegree: nonNegative(n.OutDegree),
			volume:    n.TotalVolume,
			txCount:   n.TransactionCount,
			totalOut:  stats.TotalOut,
			score:     score,
			inRing:    ringID != "",
		}),
		NetworkStats: stats,
		Connections:  conns,
	}
}

func mapRing(r domain.RingPayload) domain.FraudRing {
	members := make([]string, len(r.MemberAccounts))
	copy(members, r.MemberAccounts)

	count := r.MemberCount
	if count == 0 && len(members) > 0 {
		count = len(members)
	}

	return domain.FraudRing{
		ID:          r.RingID,
		PatternType: PatternLabel(r.PatternType),
		MemberCount: count,
		RiskScore:   clampScore(r.RiskScore),
		TotalAmount: r.TotalAmount,
		AccountIDs:  members,
	}
}

// PatternLabel maps an engine pattern tag to its display label.
// Unrecognized tags pass through unchanged.
func PatternLabel(tag string) string {
	switch tag {
	case "cycle":
		return domain.PatternCircularLoop
	case "fan_in":
		return domain.PatternSmurfingFanIn
	case "fan_out":
		return domain.PatternSmurfingFanOut
	case "layering":
		return domain.PatternLayering
	default:
		return tag
	}
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
