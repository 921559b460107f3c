package graph

import "github.com/opensource-finance/kestrel/internal/domain"

// Overlay composites a simulation result onto elements. A nil result returns
// elements as-is. Otherwise the input is copied, never mutated: unknown
// endpoints are added as sim nodes, the hypothetical edge is appended, and
// affected or cycle members get the matching tag after their base class.
func Overlay(elements []domain.Element, sim *domain.SimulationResult) []domain.Element {
	if sim == nil {
		return elements
	}

	out := make([]domain.Element, 0, len(elements)+3)
	nodes := make(map[string]struct{})
	for _, el := range elements {
		out = append(out, el.Clone())
		if el.IsNode() {
			nodes[el.Data.ID] = struct{}{}
		}
	}

	sender := sim.HypotheticalTx.SenderID
	receiver := sim.HypotheticalTx.ReceiverID
	for _, id := range []string{sender, receiver} {
		if _, ok := nodes[id]; ok {
			continue
		}
		nodes[id] = struct{}{}
		out = append(out, simNode(id))
	}

	amount := sim.HypotheticalTx.Amount
	out = append(out, domain.Element{
		Group: domain.GroupEdges,
		Data: domain.ElementData{
			ID:     domain.SimEdgeID,
			Source: sender,
			Target: receiver,
			Amount: &amount,
		},
		Classes: []string{domain.ClassSimEdge},
	})

	affected := sim.AffectedAccounts()
	cycle := sim.CycleMembers()
	for i := range out {
		id := out[i].Data.ID
		if _, ok := affected[id]; ok {
			out[i] = tag(out[i], domain.ClassSimAffected)
		}
		if _, ok := cycle[id]; ok {
			out[i] = tag(out[i], domain.ClassSimCycle)
		}
	}

	return out
}

func simNode(id string) domain.Element {
	score := 0.0
	return domain.Element{
		Group: domain.GroupNodes,
		Data: domain.ElementData{
			ID:    id,
			Label: id,
			Score: &score,
		},
		Classes: []string{domain.ClassSimNode},
	}
}

func tag(el domain.Element, class string) domain.Element {
	if !el.HasClass(class) {
		el.Classes = append(el.Classes, class)
	}
	return el
}
