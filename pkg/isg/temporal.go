// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package isg

import "fmt"

// Triple is the (current_ind, future_ind, future_action) tuple attached to
// every entity and edge, encoding whether it exists now, will exist after a
// staged change, and if so how it is changing.
type Triple struct {
	CurrentInd   bool
	FutureInd    bool
	FutureAction *FutureAction
}

// legalTriples is the four-row table from spec §4.5. Any combination not in
// this table is a contract violation, rejected at stage-time and commit-time.
var legalTriples = []Triple{
	{CurrentInd: true, FutureInd: true, FutureAction: nil},           // Exists unchanged
	{CurrentInd: true, FutureInd: true, FutureAction: actionPtr(ActionEdit)},   // Will be modified
	{CurrentInd: true, FutureInd: false, FutureAction: actionPtr(ActionDelete)}, // Will be removed
	{CurrentInd: false, FutureInd: true, FutureAction: actionPtr(ActionCreate)}, // Will be added
}

func actionPtr(a FutureAction) *FutureAction { return &a }

// IsLegalTriple reports whether (current, future, action) is one of the four
// legal combinations in the state table.
func IsLegalTriple(current, future bool, action *FutureAction) bool {
	for _, t := range legalTriples {
		if t.CurrentInd == current && t.FutureInd == future && sameAction(t.FutureAction, action) {
			return true
		}
	}
	return false
}

func sameAction(a, b *FutureAction) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ErrIllegalTriple is returned when a (current_ind, future_ind, future_action)
// combination does not match the state table.
type ErrIllegalTriple struct {
	Current bool
	Future  bool
	Action  *FutureAction
}

func (e *ErrIllegalTriple) Error() string {
	action := "nil"
	if e.Action != nil {
		action = string(*e.Action)
	}
	return fmt.Sprintf("illegal temporal triple: current_ind=%v future_ind=%v future_action=%s", e.Current, e.Future, action)
}

// ValidateEntity checks entity-level invariants from spec §3:
//   - the temporal triple is legal
//   - future_code is present iff future_action is Create or Edit
//   - future_code is absent when future_action is Delete
//   - current_code is present when current_ind is true
func ValidateEntity(e Entity) error {
	if !IsLegalTriple(e.CurrentInd, e.FutureInd, e.FutureAction) {
		return &ErrIllegalTriple{Current: e.CurrentInd, Future: e.FutureInd, Action: e.FutureAction}
	}

	if e.FutureAction != nil {
		switch *e.FutureAction {
		case ActionCreate, ActionEdit:
			if e.FutureCode == nil {
				return fmt.Errorf("entity %s: future_code required for future_action=%s", e.Key, *e.FutureAction)
			}
		case ActionDelete:
			if e.FutureCode != nil {
				return fmt.Errorf("entity %s: future_code must be absent for future_action=Delete", e.Key)
			}
		}
	}

	if e.CurrentInd && e.CurrentCode == nil {
		return fmt.Errorf("entity %s: current_code required when current_ind=true", e.Key)
	}

	return nil
}

// ValidateEdge checks edge-level temporal-triple legality. Endpoint
// existence and delete-with-live-dependents are store-level invariants
// (pkg/isgdb, pkg/temporal) because they require looking at other rows.
func ValidateEdge(e Edge) error {
	if !IsLegalTriple(e.CurrentInd, e.FutureInd, e.FutureAction) {
		return &ErrIllegalTriple{Current: e.CurrentInd, Future: e.FutureInd, Action: e.FutureAction}
	}
	if e.Strength < 0 || e.Strength > 1 {
		return fmt.Errorf("edge %s->%s: strength %f out of [0,1]", e.FromKey, e.ToKey, e.Strength)
	}
	return nil
}
