package scoring

import "engagement-rewards/internal/domain"

// Delta is the day-over-day credit of one participant.
type Delta struct {
	PreviousNonPool int64
	NonPoolEarned   int64
	EarnedToday     int64
}

// ComputeDelta compares today's total with the previous snapshot (nil on a
// first run). The pool component is credited in full every run and kept out
// of the difference, so a falling external rank never yields negative credit.
func ComputeDelta(currentTotal, currentPool int64, previous *domain.DailyScoreSnapshot) Delta {
	d := Delta{PreviousNonPool: previous.NonPoolPoints()}

	d.NonPoolEarned = (currentTotal - currentPool) - d.PreviousNonPool
	if d.NonPoolEarned < 0 {
		d.NonPoolEarned = 0
	}
	d.EarnedToday = d.NonPoolEarned + currentPool
	return d
}
