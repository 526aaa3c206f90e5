package sm2

import (
	"errors"
	"math"
	"testing"
	"time"
)

var day0 = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNextAgain(t *testing.T) {
	params := DefaultParams()
	states := []State{
		NewState(day0),
		{Repetitions: 5, Ease: 2.7, IntervalDays: 40, Lapses: 2},
		{Repetitions: 1, Ease: 1.35, IntervalDays: 1},
		{Repetitions: 0, Ease: MinEase, IntervalDays: 0, Lapses: 9},
	}

	for _, st := range states {
		next, err := params.Next(st, Again, day0)
		if err != nil {
			t.Fatalf("Next() returned an unexpected error: %v", err)
		}
		if next.Repetitions != 0 {
			t.Errorf("Expected repetitions to reset to 0, got %d", next.Repetitions)
		}
		if next.IntervalDays != 1 {
			t.Errorf("Expected interval of 1 day after Again, got %d", next.IntervalDays)
		}
		if next.Lapses != st.Lapses+1 {
			t.Errorf("Expected lapses %d, got %d", st.Lapses+1, next.Lapses)
		}
		if next.Ease < MinEase {
			t.Errorf("Ease %.2f dropped below the floor", next.Ease)
		}
		if !next.DueAt.Equal(day0.AddDate(0, 0, 1)) {
			t.Errorf("Expected due date one day out, got %v", next.DueAt)
		}
	}
}

func TestRepeatedAgainKeepsEaseFloor(t *testing.T) {
	params := DefaultParams()
	st := State{Ease: MinEase}
	for i := 0; i < 10; i++ {
		var err error
		st, err = params.Next(st, Again, day0)
		if err != nil {
			t.Fatalf("Next() returned an unexpected error: %v", err)
		}
		if st.Ease != MinEase {
			t.Fatalf("After %d lapses expected ease %.2f, got %v", i+1, MinEase, st.Ease)
		}
	}
	if st.Lapses != 10 {
		t.Errorf("Expected 10 lapses, got %d", st.Lapses)
	}
}

func TestNextHard(t *testing.T) {
	params := DefaultParams()
	testCases := []struct {
		name         string
		state        State
		wantInterval int
		wantEase     float64
	}{
		{"brand new card", State{Ease: DefaultEase}, 1, 2.35},
		{"one day interval", State{Repetitions: 1, Ease: 2.5, IntervalDays: 1}, 1, 2.35},
		{"grows by a fifth", State{Repetitions: 3, Ease: 2.5, IntervalDays: 10}, 12, 2.35},
		{"ease floor", State{Repetitions: 3, Ease: 1.35, IntervalDays: 15}, 18, MinEase},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := params.Next(tc.state, Hard, day0)
			if err != nil {
				t.Fatalf("Next() returned an unexpected error: %v", err)
			}
			if next.IntervalDays != tc.wantInterval {
				t.Errorf("Expected interval %d, got %d", tc.wantInterval, next.IntervalDays)
			}
			if !almostEqual(next.Ease, tc.wantEase) {
				t.Errorf("Expected ease %.2f, got %v", tc.wantEase, next.Ease)
			}
			if next.Repetitions != tc.state.Repetitions+1 {
				t.Errorf("Expected repetitions %d, got %d", tc.state.Repetitions+1, next.Repetitions)
			}
		})
	}
}

func TestGoodScenario(t *testing.T) {
	params := DefaultParams()
	st := NewState(day0)
	now := day0

	steps := []struct {
		rating       Rating
		wantReps     int
		wantInterval int
		wantEase     float64
		wantLapses   int
	}{
		{Good, 1, 1, 2.5, 0},
		{Good, 2, 6, 2.5, 0},
		{Good, 3, 15, 2.5, 0},
		{Again, 0, 1, 2.3, 1},
	}

	for i, step := range steps {
		var err error
		st, err = params.Next(st, step.rating, now)
		if err != nil {
			t.Fatalf("review %d: unexpected error: %v", i+1, err)
		}
		if st.Repetitions != step.wantReps || st.IntervalDays != step.wantInterval || st.Lapses != step.wantLapses {
			t.Errorf("review %d: got reps=%d interval=%d lapses=%d, want reps=%d interval=%d lapses=%d",
				i+1, st.Repetitions, st.IntervalDays, st.Lapses, step.wantReps, step.wantInterval, step.wantLapses)
		}
		if !almostEqual(st.Ease, step.wantEase) {
			t.Errorf("review %d: expected ease %.2f, got %v", i+1, step.wantEase, st.Ease)
		}
		if !st.LastReviewedAt.Equal(now) {
			t.Errorf("review %d: last review %v, want %v", i+1, st.LastReviewedAt, now)
		}
		if !st.DueAt.Equal(now.AddDate(0, 0, st.IntervalDays)) {
			t.Errorf("review %d: due %v is not last review + interval", i+1, st.DueAt)
		}
		now = st.DueAt
	}
}

func TestGoodStrictlyGrowsInterval(t *testing.T) {
	params := DefaultParams()
	for _, ease := range []float64{1.3, 1.5, 2.5, 3.1} {
		for _, prev := range []int{1, 2, 3, 6, 15, 100} {
			st := State{Repetitions: 2, Ease: ease, IntervalDays: prev}
			next, err := params.Next(st, Good, day0)
			if err != nil {
				t.Fatalf("Next() returned an unexpected error: %v", err)
			}
			if next.IntervalDays <= prev {
				t.Errorf("ease %.2f prev %d: interval did not grow, got %d", ease, prev, next.IntervalDays)
			}
			if next.Ease != ease {
				t.Errorf("Good changed ease from %.2f to %v", ease, next.Ease)
			}
		}
	}
}

func TestEasyNeverShorterThanGood(t *testing.T) {
	params := DefaultParams()
	states := []State{
		NewState(day0),
		{Repetitions: 1, Ease: 2.5, IntervalDays: 1},
		{Repetitions: 2, Ease: 1.3, IntervalDays: 6},
		{Repetitions: 7, Ease: 2.1, IntervalDays: 80},
		{Repetitions: 0, Ease: 1.8, IntervalDays: 1, Lapses: 3},
	}
	for _, st := range states {
		good, _ := params.Next(st, Good, day0)
		easy, err := params.Next(st, Easy, day0)
		if err != nil {
			t.Fatalf("Next() returned an unexpected error: %v", err)
		}
		if easy.IntervalDays < good.IntervalDays {
			t.Errorf("state %+v: Easy interval %d is shorter than Good %d", st, easy.IntervalDays, good.IntervalDays)
		}
		if !almostEqual(easy.Ease, st.Ease+0.15) {
			t.Errorf("Expected Easy to add 0.15 ease, got %v from %v", easy.Ease, st.Ease)
		}
	}
}

func TestEasyInterval(t *testing.T) {
	params := DefaultParams()
	next, err := params.Next(State{Repetitions: 1, Ease: 2.5, IntervalDays: 1}, Easy, day0)
	if err != nil {
		t.Fatalf("Next() returned an unexpected error: %v", err)
	}
	// Good would give 6, times 1.3 is 7.8.
	if next.IntervalDays != 8 {
		t.Errorf("Expected interval 8, got %d", next.IntervalDays)
	}
}

func TestMaxInterval(t *testing.T) {
	params := &Params{MinEase: MinEase, MaxInterval: 30}
	next, err := params.Next(State{Repetitions: 5, Ease: 2.5, IntervalDays: 20}, Good, day0)
	if err != nil {
		t.Fatalf("Next() returned an unexpected error: %v", err)
	}
	if next.IntervalDays != 30 {
		t.Errorf("Expected interval capped at 30, got %d", next.IntervalDays)
	}

	unbounded, _ := DefaultParams().Next(State{Repetitions: 5, Ease: 2.5, IntervalDays: 20}, Good, day0)
	if unbounded.IntervalDays != 50 {
		t.Errorf("Expected uncapped interval 50, got %d", unbounded.IntervalDays)
	}
}

func TestNextClampsMalformedState(t *testing.T) {
	next, err := DefaultParams().Next(State{Repetitions: -2, Ease: 0.4, IntervalDays: -5}, Hard, day0)
	if err != nil {
		t.Fatalf("Next() returned an unexpected error: %v", err)
	}
	if next.Ease != MinEase || next.IntervalDays != 1 || next.Repetitions != 1 {
		t.Errorf("Unexpected state from malformed input: %+v", next)
	}
}

func TestNextInvalidRating(t *testing.T) {
	for _, r := range []Rating{0, 5, -1} {
		_, err := DefaultParams().Next(NewState(day0), r, day0)
		if !errors.Is(err, ErrInvalidRating) {
			t.Errorf("rating %d: expected ErrInvalidRating, got %v", r, err)
		}
	}
}

func TestPreview(t *testing.T) {
	got := DefaultParams().Preview(State{Repetitions: 2, Ease: 2.5, IntervalDays: 6}, day0)
	want := map[Rating]int{Again: 1, Hard: 7, Good: 15, Easy: 20}
	for r, days := range want {
		if got[r] != days {
			t.Errorf("%s: expected %d days, got %d", r, days, got[r])
		}
	}
}
