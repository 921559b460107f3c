package domain

// AnalysisResponse is the batch analysis payload returned by the detection engine
// from POST /api/analyze. Graph and Summary are pointers so a missing key can be
// told apart from an empty value.
type AnalysisResponse struct {
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []RingPayload       `json:"fraud_rings"`
	Summary            *Summary            `json:"summary"`
	Graph              *GraphPayload       `json:"graph"`
}

// SuspiciousAccount carries the detection-specific fields for one scored account.
type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingID           string   `json:"ring_id"`
	InDegree         int      `json:"in_degree"`
	OutDegree        int      `json:"out_degree"`
	TotalVolume      float64  `json:"total_volume"`
	TransactionCount int      `json:"transaction_count"`
	RingCount        int      `json:"ring_count"`
	PatternTypes     []string `json:"pattern_types"`
	MerchantFactor   float64  `json:"merchant_factor"`
}

// RingPayload is one fraud ring as reported by the engine.
type RingPayload struct {
	RingID         string        `json:"ring_id"`
	PatternType    string        `json:"pattern_type"`
	MemberAccounts []string      `json:"member_accounts"`
	MemberCount    int           `json:"member_count"`
	RiskScore      float64       `json:"risk_score"`
	TotalAmount    float64       `json:"total_amount"`
	CenterNode     string        `json:"center_node,omitempty"`
	Edges          []RingEdgeRef `json:"edges"`
}

// RingEdgeRef names a directed edge that belongs to a ring.
type RingEdgeRef struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Summary holds the aggregate counters of an analysis.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
	TotalTransactions         int     `json:"total_transactions"`
	TotalNodes                int     `json:"total_nodes"`
	TotalEdges                int     `json:"total_edges"`
	CircularLoopsFound        int     `json:"circular_loops_found"`
	SmurfingPatternsFound     int     `json:"smurfing_patterns_found"`
	LayeringChainsFound       int     `json:"layering_chains_found"`
	TotalFraudRings           int     `json:"total_fraud_rings"`
	HighRiskAccounts          int     `json:"high_risk_accounts"`
	MediumRiskAccounts        int     `json:"medium_risk_accounts"`
	TotalFlaggedAmount        float64 `json:"total_flagged_amount"`
}

// GraphPayload is the aggregated transaction graph. Nodes and Edges are
// required keys; a nil slice means the key was absent.
type GraphPayload struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode is one account vertex in the engine graph.
type GraphNode struct {
	ID               string   `json:"id"`
	Suspicious       bool     `json:"suspicious"`
	SuspicionScore   float64  `json:"suspicion_score"`
	InDegree         int      `json:"in_degree"`
	OutDegree        int      `json:"out_degree"`
	RingIDs          []string `json:"ring_ids"`
	TotalVolume      float64  `json:"total_volume"`
	TransactionCount int      `json:"transaction_count"`
}

// GraphEdge is one sender/receiver pair, pre-aggregated by the engine.
type GraphEdge struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Suspicious  bool    `json:"suspicious"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

// AccountList is the GET /api/accounts payload.
type AccountList struct {
	Accounts []string `json:"accounts"`
}
