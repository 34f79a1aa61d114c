package actor

import (
	"slices"
	"sync"
	"time"
)

// TimerToken identifies an armed timer.
type TimerToken uint64

// Timer is the timing collaborator actors use for idle and request
// timeouts. fire runs on an arbitrary goroutine and must not block.
type Timer interface {
	// Arm schedules fire to run after d.
	Arm(d time.Duration, fire func()) TimerToken

	// Cancel stops the timer if it did not fire yet.
	Cancel(token TimerToken)
}

// AfterFuncTimer is a Timer built on time.AfterFunc.
type AfterFuncTimer struct {
	mu      sync.Mutex
	next    TimerToken
	pending map[TimerToken]*time.Timer
}

// NewAfterFuncTimer returns a ready to use AfterFuncTimer.
func NewAfterFuncTimer() *AfterFuncTimer {
	return &AfterFuncTimer{
		pending: make(map[TimerToken]*time.Timer),
	}
}

// Arm implements Timer.
func (t *AfterFuncTimer) Arm(d time.Duration, fire func()) TimerToken {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	token := t.next

	// The callback takes the lock, so it cannot observe the map before
	// the entry exists.
	t.pending[token] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.pending, token)
		t.mu.Unlock()

		fire()
	})

	return token
}

// Cancel implements Timer.
func (t *AfterFuncTimer) Cancel(token TimerToken) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.pending[token]; ok {
		timer.Stop()
		delete(t.pending, token)
	}
}

// Pending returns the number of armed timers.
func (t *AfterFuncTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// ManualTimer is a Timer that only fires on request. Tests use it to drive
// timeouts deterministically.
type ManualTimer struct {
	mu      sync.Mutex
	next    TimerToken
	pending map[TimerToken]manualEntry
}

type manualEntry struct {
	d    time.Duration
	fire func()
}

// NewManualTimer returns an empty ManualTimer.
func NewManualTimer() *ManualTimer {
	return &ManualTimer{
		pending: make(map[TimerToken]manualEntry),
	}
}

// Arm implements Timer.
func (t *ManualTimer) Arm(d time.Duration, fire func()) TimerToken {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.pending[t.next] = manualEntry{d: d, fire: fire}

	return t.next
}

// Cancel implements Timer.
func (t *ManualTimer) Cancel(token TimerToken) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, token)
}

// Pending returns the number of armed timers.
func (t *ManualTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// FireAll fires every armed timer in arming order and returns how many
// fired.
func (t *ManualTimer) FireAll() int {
	t.mu.Lock()
	var tokens []TimerToken
	for tok := range t.pending {
		tokens = append(tokens, tok)
	}
	fires := make([]func(), 0, len(tokens))
	slices.Sort(tokens)
	for _, tok := range tokens {
		fires = append(fires, t.pending[tok].fire)
		delete(t.pending, tok)
	}
	t.mu.Unlock()

	for _, fire := range fires {
		fire()
	}

	return len(fires)
}
