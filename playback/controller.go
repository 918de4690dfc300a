package playback

import "time"

// Phase classifies who may write the now-playing register. There is no explicit
// leader-election protocol: whichever poller heartbeats most recently is the
// implicit controller, and anyone may take over once the heartbeat goes stale.
// Brief dual-controller writes are possible and tolerated (last write wins).
type Phase int

const (
	// Unclaimed means no controller exists or the last heartbeat is stale;
	// any viewer may begin writing.
	Unclaimed Phase = iota
	// Controlled means the claimant currently owns the register.
	Controlled
	// Contested means a different controller holds a fresh heartbeat;
	// the claimant should keep reading only.
	Contested
)

func (p Phase) String() string {
	switch p {
	case Unclaimed:
		return "unclaimed"
	case Controlled:
		return "controlled"
	case Contested:
		return "contested"
	default:
		return "unknown"
	}
}

// ShouldTakeOver reports whether a viewer observing lastHeartbeat at now may
// unilaterally claim the controller role. Pure so election logic is testable
// independent of storage.
func ShouldTakeOver(now, lastHeartbeat time.Time, timeout time.Duration) bool {
	if lastHeartbeat.IsZero() {
		return true
	}
	return now.Sub(lastHeartbeat) >= timeout
}

// Evaluate classifies the election from a claimant's point of view given the
// register's current owner and heartbeat.
func Evaluate(owner string, lastHeartbeat time.Time, claimant string, now time.Time, timeout time.Duration) Phase {
	if owner == "" || ShouldTakeOver(now, lastHeartbeat, timeout) {
		return Unclaimed
	}
	if owner == claimant {
		return Controlled
	}
	return Contested
}
