package domain_test

import (
	"testing"

	"kuizu-session-service/internal/domain"
)

func TestScorePointsSpeedBonus(t *testing.T) {
	cases := []struct {
		name           string
		base           int
		limitSeconds   int
		responseTimeMs int64
		want           int
	}{
		{"instant answer gets full bonus", 100, 30, 0, 150},
		{"halfway answer gets half bonus", 100, 30, 15000, 125},
		{"answer at the limit gets base points", 100, 30, 30000, 100},
		{"answer past the limit gets base points", 100, 30, 45000, 100},
		{"negative time clamps to instant", 100, 30, -500, 150},
		{"zero base yields zero", 0, 30, 0, 0},
		{"bonus truncates toward zero", 100, 30, 10000, 133},
		{"zero limit disables bonus", 100, 0, 0, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.ScorePoints(tc.base, tc.limitSeconds, tc.responseTimeMs)
			if got != tc.want {
				t.Fatalf("ScorePoints(%d, %d, %d) = %d, want %d",
					tc.base, tc.limitSeconds, tc.responseTimeMs, got, tc.want)
			}
		})
	}
}

func TestScorePointsNeverBelowBase(t *testing.T) {
	for ms := int64(0); ms <= 60000; ms += 1500 {
		got := domain.ScorePoints(80, 20, ms)
		if got < 80 {
			t.Fatalf("correct answer at %dms scored %d, below base 80", ms, got)
		}
		if got > 120 {
			t.Fatalf("correct answer at %dms scored %d, above capped 120", ms, got)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[domain.SessionStatus][]domain.SessionStatus{
		domain.StatusWaiting: {domain.StatusActive, domain.StatusFinished},
		domain.StatusActive:  {domain.StatusPaused, domain.StatusFinished},
		domain.StatusPaused:  {domain.StatusActive, domain.StatusFinished},
	}
	all := []domain.SessionStatus{
		domain.StatusWaiting, domain.StatusActive, domain.StatusPaused, domain.StatusFinished,
	}
	for from, targets := range allowed {
		ok := map[domain.SessionStatus]bool{}
		for _, to := range targets {
			ok[to] = true
		}
		for _, to := range all {
			if got := from.CanTransitionTo(to); got != ok[to] {
				t.Fatalf("%s -> %s: got %v, want %v", from, to, got, ok[to])
			}
		}
	}
	for _, to := range all {
		if domain.StatusFinished.CanTransitionTo(to) {
			t.Fatalf("finished must be terminal, but finished -> %s allowed", to)
		}
	}
}

func TestPlayerViewStripsCorrectness(t *testing.T) {
	question := domain.Question{
		ID: "q1",
		Answers: []domain.Answer{
			{ID: "a1", Text: "Water", Correct: true},
			{ID: "a2", Text: "Gasoline"},
		},
	}
	view := question.PlayerView()
	for _, a := range view.Answers {
		if a.Correct {
			t.Fatalf("player view leaked correctness on answer %s", a.ID)
		}
	}
	// Original must be untouched.
	if !question.Answers[0].Correct {
		t.Fatal("PlayerView mutated the source question")
	}
}
