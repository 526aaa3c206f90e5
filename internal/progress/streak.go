package progress

import "time"

type civilDay struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) civilDay {
	y, m, d := t.In(loc).Date()
	return civilDay{y, m, d}
}

// CountStreak returns the number of consecutive calendar days in loc, ending
// today or yesterday relative to now, that contain at least one of the review
// times. A day without reviews breaks the streak; the current day only
// extends it once it has a review of its own.
func CountStreak(reviews []time.Time, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	days := make(map[civilDay]struct{}, len(reviews))
	for _, t := range reviews {
		days[dayOf(t, loc)] = struct{}{}
	}

	// Walk calendar dates rather than 24h steps so DST changes don't skip or
	// repeat a day.
	y, m, d := now.In(loc).Date()
	cursor := time.Date(y, m, d, 12, 0, 0, 0, loc)
	if _, ok := days[dayOf(cursor, loc)]; !ok {
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak := 0
	for {
		if _, ok := days[dayOf(cursor, loc)]; !ok {
			return streak
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
}
