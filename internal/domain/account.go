package domain

import "time"

// Direction of a connection relative to the account that owns it.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Account is the projected view of one graph node.
type Account struct {
	ID               string        `json:"id"`
	SuspicionScore   float64       `json:"suspicionScore"`
	InDegree         int           `json:"inDegree"`
	OutDegree        int           `json:"outDegree"`
	Volume           float64       `json:"volume"`
	TransactionCount int           `json:"transactionCount"`
	Patterns         []string      `json:"patterns"`
	RingID           string        `json:"ringId,omitempty"`
	BehavioralDNA    BehavioralDNA `json:"behavioralDna"`
	NetworkStats     NetworkStats  `json:"networkStats"`
	Connections      []Connection  `json:"connections"`
}

// InRing reports whether the account carries a ring badge.
func (a *Account) InRing() bool {
	return a.RingID != ""
}

// BehavioralDNA is the six-dimension derived feature vector, each in [0,100].
type BehavioralDNA struct {
	Velocity        int `json:"velocity"`
	AmtVariance     int `json:"amtVariance"`
	FanSymmetry     int `json:"fanSymmetry"`
	TemporalCluster int `json:"temporalCluster"`
	HopDepth        int `json:"hopDepth"`
	AmtDecay        int `json:"amtDecay"`
}

// NetworkStats aggregates the account's incident edges.
type NetworkStats struct {
	TotalIn  float64 `json:"totalIn"`
	TotalOut float64 `json:"totalOut"`
	TxCount  int     `json:"txCount"`
}

// Connection is one edge seen from a single endpoint.
type Connection struct {
	TargetID  string    `json:"targetId"`
	Direction Direction `json:"direction"`
	Amount    float64   `json:"amount"`
}

// Display labels for ring pattern types.
const (
	PatternCircularLoop   = "Circular Loop"
	PatternSmurfingFanIn  = "Smurfing Fan-in"
	PatternSmurfingFanOut = "Smurfing Fan-out"
	PatternLayering       = "Layering"
)

// FraudRing is the projected view of one detected ring.
type FraudRing struct {
	ID          string   `json:"id"`
	PatternType string   `json:"patternType"`
	MemberCount int      `json:"memberCount"`
	RiskScore   float64  `json:"riskScore"`
	TotalAmount float64  `json:"totalAmount"`
	AccountIDs  []string `json:"accountIds"`
}

// Transaction is one aggregated edge.
type Transaction struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Target  string  `json:"target"`
	Amount  float64 `json:"amount"`
	IsFraud bool    `json:"isFraud"`
	Count   int     `json:"count"`

	// Timestamp is the moment of projection, not an event time. The engine
	// aggregates rows per pair and reports no per-edge time.
	Timestamp time.Time `json:"timestamp"`
}
