// Package chain implements the chain synchroniser: the component that
// watches the L1 rollup cell, classifies what happened to it since the
// last observed state, and drives the local store/account-tree through
// the matching Update or Revert action.
package chain

import "github.com/gwnode/gwnode/internal/gwtypes"

// EventKind classifies what the rollup cell's latest L1 transaction
// did, read off which witness/cell pattern the transaction matches.
type EventKind int

const (
	// EventSubmitBlock: a new L2 block was committed.
	EventSubmitBlock EventKind = iota
	// EventChallenge: a challenger opened a challenge against a block.
	EventChallenge
	// EventCancelChallenge: the block producer proved the challenge
	// wrong and the challenge was cancelled.
	EventCancelChallenge
	// EventRevert: a challenge succeeded and the chain reverted to
	// before the bad block.
	EventRevert
)

// Action is the local effect a classified event drives: either
// advancing state (Update) or unwinding it (Revert).
type Action int

const (
	ActionUpdate Action = iota
	ActionRevert
)

// ClassifyEvent maps an observed event kind to the action the
// synchroniser must take. Challenge and CancelChallenge map to
// ActionUpdate but the synchroniser does nothing for them (they don't
// change GlobalState); only SubmitBlock and Revert do.
func ClassifyEvent(kind EventKind) Action {
	if kind == EventRevert {
		return ActionRevert
	}
	return ActionUpdate
}

// Event is a single classified L1 observation carrying whatever data
// its kind requires.
type Event struct {
	Kind        EventKind
	Block       *gwtypes.RawL2Block
	Withdrawals []gwtypes.WithdrawalRequestExtra
	Deposits    []gwtypes.DepositRequest
	Txs         []gwtypes.L2Transaction
	// RevertedToNumber is set for EventRevert: the number of the block
	// being unwound back to (the chain's new tip after the revert).
	RevertedToNumber uint64
	L1BlockHash      gwtypes.H256
	L1BlockNumber    uint64
}
