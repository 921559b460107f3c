// Package graph builds the element list handed to the rendering surface and
// composites simulation overlays on top of it.
package graph

import "github.com/opensource-finance/kestrel/internal/domain"

// Filter narrows the accounts that become nodes.
type Filter struct {
	// RingsOnly keeps only accounts that belong to a ring.
	RingsOnly bool

	// Where is an optional extra predicate, applied after RingsOnly.
	Where func(domain.Account) bool
}

func (f Filter) keep(a domain.Account) bool {
	if f.RingsOnly && !a.InRing() {
		return false
	}
	if f.Where != nil && !f.Where(a) {
		return false
	}
	return true
}

// Build converts accounts and transactions into graph elements.
// Nodes follow account order and edges follow transaction order. An edge is
// kept only when both of its endpoints were kept.
func Build(accounts []domain.Account, transactions []domain.Transaction, f Filter) []domain.Element {
	kept := make(map[string]struct{}, len(accounts))
	elements := make([]domain.Element, 0, len(accounts)+len(transactions))

	for _, a := range accounts {
		if !f.keep(a) {
			continue
		}
		kept[a.ID] = struct{}{}
		elements = append(elements, nodeElement(a))
	}

	for _, tx := range transactions {
		if _, ok := kept[tx.Source]; !ok {
			continue
		}
		if _, ok := kept[tx.Target]; !ok {
			continue
		}
		elements = append(elements, edgeElement(tx))
	}

	return elements
}

func nodeElement(a domain.Account) domain.Element {
	score := a.SuspicionScore
	return domain.Element{
		Group: domain.GroupNodes,
		Data: domain.ElementData{
			ID:     a.ID,
			Label:  a.ID,
			Score:  &score,
			RingID: a.RingID,
		},
		Classes: []string{nodeClass(a)},
	}
}

func nodeClass(a domain.Account) string {
	switch {
	case a.InRing():
		return domain.ClassRingMember
	case a.SuspicionScore > domain.SuspiciousScoreThreshold:
		return domain.ClassSuspicious
	default:
		return domain.ClassClean
	}
}

func edgeElement(tx domain.Transaction) domain.Element {
	amount := tx.Amount
	class := domain.ClassNormalEdge
	if tx.IsFraud {
		class = domain.ClassFraudEdge
	}
	return domain.Element{
		Group: domain.GroupEdges,
		Data: domain.ElementData{
			ID:     tx.ID,
			Source: tx.Source,
			Target: tx.Target,
			Amount: &amount,
			Fraud:  tx.IsFraud,
		},
		Classes: []string{class},
	}
}
