package challenger

import (
	"sync"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// TestModeControl lets a test harness force which target a subsequent
// HandleBadBlock call challenges, independent of what local replay
// actually detected. It never changes production control flow: a
// Challenger with no TestModeControl installed always challenges
// exactly the target its BadBlockEvent carries.
type TestModeControl struct {
	mu     sync.Mutex
	forced *gwtypes.ChallengeTarget
}

// NewTestModeControl returns an empty control with no forced target.
func NewTestModeControl() *TestModeControl { return &TestModeControl{} }

// ForceTarget makes every HandleBadBlock call challenge target
// regardless of the event it's given, until Clear is called.
func (t *TestModeControl) ForceTarget(target gwtypes.ChallengeTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forced = &target
}

// Clear removes a previously forced target, returning control to the
// event's own target.
func (t *TestModeControl) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forced = nil
}

// ForcedTarget returns the currently forced target, if any.
func (t *TestModeControl) ForcedTarget() (gwtypes.ChallengeTarget, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.forced == nil {
		return gwtypes.ChallengeTarget{}, false
	}
	return *t.forced, true
}
