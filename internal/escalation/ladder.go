package escalation

import "fmt"

// Ladder holds cumulative offsets added to the original baseline: the
// budget after the n-th truncation is baseline + Deltas[n-1].
type Ladder struct {
	Deltas []int
}

func (l Ladder) validate() error {
	prev := 0
	for i, d := range l.Deltas {
		if d <= prev {
			return fmt.Errorf("escalation delta %d (%d) must be greater than %d", i, d, prev)
		}
		prev = d
	}
	return nil
}

// Budget returns the token budget for attempt n (0 is the baseline). Past
// the configured deltas the last step size repeats.
func (l Ladder) Budget(baseline, n int) int {
	if n <= 0 || len(l.Deltas) == 0 {
		return baseline
	}
	if n <= len(l.Deltas) {
		return baseline + l.Deltas[n-1]
	}
	last := l.Deltas[len(l.Deltas)-1]
	step := last
	if len(l.Deltas) > 1 {
		step = last - l.Deltas[len(l.Deltas)-2]
	}
	return baseline + last + (n-len(l.Deltas))*step
}
