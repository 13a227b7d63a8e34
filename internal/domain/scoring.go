package domain

// SpeedBonusCap is the largest fraction of base points a correct answer can
// earn on top of base credit; an instant answer gets the full cap.
const SpeedBonusCap = 0.5

// ScorePoints computes the speed-weighted points for a correct answer:
// base * (1 + max(0, 1 - rt/(limit*1000)) * SpeedBonusCap), truncated.
// Answers at or past the time limit keep full base credit with zero bonus;
// lateness is never penalized below base.
func ScorePoints(basePoints, timeLimitSeconds int, responseTimeMs int64) int {
	if basePoints <= 0 {
		return 0
	}
	if responseTimeMs < 0 {
		responseTimeMs = 0
	}
	bonus := 0.0
	if limitMs := float64(timeLimitSeconds) * 1000; limitMs > 0 {
		if remaining := 1 - float64(responseTimeMs)/limitMs; remaining > 0 {
			bonus = remaining * SpeedBonusCap
		}
	}
	return int(float64(basePoints) * (1 + bonus))
}
