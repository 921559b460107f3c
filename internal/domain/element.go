package domain

// Element groups understood by the rendering surface.
const (
	GroupNodes = "nodes"
	GroupEdges = "edges"
)

// Style classes attached to graph elements.
const (
	ClassRingMember  = "ring-member"
	ClassSuspicious  = "suspicious"
	ClassClean       = "clean"
	ClassFraudEdge   = "fraud-edge"
	ClassNormalEdge  = "normal-edge"
	ClassSimNode     = "sim-node"
	ClassSimEdge     = "sim-edge"
	ClassSimAffected = "sim-affected"
	ClassSimCycle    = "sim-cycle"
)

// SimEdgeID is the fixed id of the hypothetical overlay edge.
const SimEdgeID = "sim-edge"

// SuspiciousScoreThreshold is the score above which a non-ring node is styled suspicious.
const SuspiciousScoreThreshold = 50.0

// Element is one node or edge handed to the rendering surface.
// Classes holds the base class first; overlay tags are appended after it.
type Element struct {
	Group   string      `json:"group"`
	Data    ElementData `json:"data"`
	Classes []string    `json:"classes"`
}

// ElementData is the payload of an element. Node-only and edge-only fields
// are omitted when empty.
type ElementData struct {
	ID     string   `json:"id"`
	Label  string   `json:"label,omitempty"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	RingID string   `json:"ringId,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
	Fraud  bool     `json:"fraud,omitempty"`
}

// IsNode reports whether the element is a node.
func (e Element) IsNode() bool {
	return e.Group == GroupNodes
}

// HasClass reports whether the element carries the given class.
func (e Element) HasClass(class string) bool {
	for _, c := range e.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Clone returns a copy whose Classes slice does not alias the original.
func (e Element) Clone() Element {
	out := e
	out.Classes = append([]string(nil), e.Classes...)
	return out
}
