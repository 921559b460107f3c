package domain

// Verdict is the engine's classification of a hypothetical transaction.
type Verdict string

const (
	VerdictDangerous  Verdict = "DANGEROUS"
	VerdictWarning    Verdict = "WARNING"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictClean      Verdict = "CLEAN"
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictDangerous, VerdictWarning, VerdictSuspicious, VerdictClean:
		return true
	}
	return false
}

// Ring impact classifications.
const (
	ImpactJoins     = "joins"
	ImpactMerges    = "merges"
	ImpactEscalates = "escalates"
)

// SimulationRequest is the JSON body for POST /api/simulate.
type SimulationRequest struct {
	SenderID   string  `json:"sender_id" validate:"required"`
	ReceiverID string  `json:"receiver_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"gt=0"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// SimulationResult is a what-if outcome computed by the engine.
// Treat it as immutable once received.
type SimulationResult struct {
	SimulationID   string           `json:"simulation_id"`
	HypotheticalTx HypotheticalTx   `json:"hypothetical_tx"`
	Verdict        Verdict          `json:"verdict"`
	VerdictReason  string           `json:"verdict_reason"`
	NewCycles      []SimulatedCycle `json:"new_cycles_created"`
	RingsAffected  []RingImpact     `json:"rings_affected"`
	RingsMerged    []RingMerge      `json:"rings_merged"`
	ScoreDeltas    []ScoreDelta     `json:"score_deltas"`
	NewSmurfing    bool             `json:"new_smurfing_triggered"`
	SmurfingAcct   *string          `json:"smurfing_account"`
	ShellExtended  bool             `json:"new_shell_chain_extended"`
	ChainDetail    *string          `json:"chain_extension_detail"`
	SubgraphDelta  SubgraphDelta    `json:"subgraph_delta"`
	ProcessingMs   float64          `json:"processing_time_ms"`
}

// HypotheticalTx echoes the simulated transaction.
type HypotheticalTx struct {
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

// SimulatedCycle is a cycle that would be created by the hypothetical transaction.
type SimulatedCycle struct {
	Members   []string `json:"cycle_members"`
	Length    int      `json:"cycle_length"`
	RiskScore float64  `json:"cycle_risk_score"`
}

// RingImpact describes how an existing ring would change.
type RingImpact struct {
	RingID       string  `json:"ring_id"`
	ImpactType   string  `json:"impact_type"`
	OldRiskScore float64 `json:"old_risk_score"`
	NewRiskScore float64 `json:"new_risk_score"`
	Delta        float64 `json:"delta"`
	Description  string  `json:"description"`
}

// RingMerge describes two rings that would be joined into one.
type RingMerge struct {
	RingA             string  `json:"ring_a"`
	RingB             string  `json:"ring_b"`
	MergedMemberCount int     `json:"merged_member_count"`
	MergedRiskScore   float64 `json:"merged_risk_score"`
}

// ScoreDelta is the estimated score change of one account.
type ScoreDelta struct {
	AccountID   string  `json:"account_id"`
	OldScore    float64 `json:"old_score"`
	NewScore    float64 `json:"new_score"`
	Delta       float64 `json:"delta"`
	DeltaReason string  `json:"delta_reason"`
}

// SubgraphDelta counts the structural change of the simulated subgraph.
type SubgraphDelta struct {
	NodesAffected      int `json:"nodes_affected"`
	EdgesAdded         int `json:"edges_added"`
	NewNodesIntroduced int `json:"new_nodes_introduced"`
}

// AffectedAccounts returns the set of account ids that appear in the score deltas.
func (r *SimulationResult) AffectedAccounts() map[string]struct{} {
	set := make(map[string]struct{}, len(r.ScoreDeltas))
	for _, d := range r.ScoreDeltas {
		set[d.AccountID] = struct{}{}
	}
	return set
}

// CycleMembers returns the union of all new cycles' members.
func (r *SimulationResult) CycleMembers() map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range r.NewCycles {
		for _, m := range c.Members {
			set[m] = struct{}{}
		}
	}
	return set
}
