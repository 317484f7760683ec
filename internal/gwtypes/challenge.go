package gwtypes

import "encoding/binary"

// ChallengeTargetType identifies which phase of a block's replay a
// challenge disputes.
type ChallengeTargetType uint8

const (
	ChallengeTargetWithdrawal ChallengeTargetType = iota
	ChallengeTargetTransaction
)

// ChallengeTarget pins the exact step a challenge is filed against: the
// disputed block's hash, the withdrawal/tx index within it, and which
// phase that index falls in.
type ChallengeTarget struct {
	BlockHash   H256
	TargetIndex uint32
	TargetType  ChallengeTargetType
}

// MarshalBinary renders a ChallengeTarget in the fixed-width layout
// carried as a challenge cell's data field.
func (t ChallengeTarget) MarshalBinary() []byte {
	b := make([]byte, 0, 32+4+1)
	b = append(b, t.BlockHash[:]...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], t.TargetIndex)
	b = append(b, idx[:]...)
	b = append(b, byte(t.TargetType))
	return b
}

// DecodeChallengeTarget reverses MarshalBinary.
func DecodeChallengeTarget(b []byte) ChallengeTarget {
	var t ChallengeTarget
	copy(t.BlockHash[:], b[0:32])
	t.TargetIndex = binary.BigEndian.Uint32(b[32:36])
	t.TargetType = ChallengeTargetType(b[36])
	return t
}

// ChallengeLockArgs is a challenge cell's lock script args: the rollup
// it belongs to, the disputed target, and the lock the eventual reward
// pays out to if the challenge is upheld.
type ChallengeLockArgs struct {
	RollupTypeHash      H256
	Target              ChallengeTarget
	RewardsReceiverLock Script
}
