package dispatch

import "time"

// pendingTTL bounds how long an accepted challenge holds a slot while its gameStart is outstanding.
const pendingTTL = time.Minute

// admission tracks accepted challenges that have not started yet. Lichess reuses the
// challenge id as the game id, so a gameStart clears its reservation. Callers hold Dispatcher.mu.
type admission struct {
	max     int
	pending map[string]time.Time
	now     func() time.Time
}

func newAdmission(max int) *admission {
	if max <= 0 {
		max = 1
	}
	return &admission{max: max, pending: make(map[string]time.Time), now: time.Now}
}

func (a *admission) admit(active int, challengeID string) bool {
	a.expire()
	if active+len(a.pending) >= a.max {
		return false
	}
	a.pending[challengeID] = a.now()
	return true
}

func (a *admission) release(id string) { delete(a.pending, id) }

func (a *admission) expire() {
	cutoff := a.now().Add(-pendingTTL)
	for id, at := range a.pending {
		if at.Before(cutoff) {
			delete(a.pending, id)
		}
	}
}
