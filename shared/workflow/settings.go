package workflow

const (
	SettingWIPLimit           = "wip_limit"
	SettingAutoTimeoutMinutes = "auto_timeout_minutes"
	SettingWorkdayHours       = "workday_hours"
	SettingDifficultyWeights  = "difficulty_weights"
)

// Settings is the runtime configuration snapshot resolved once per incoming
// operation. Values come from the app_configs table with these defaults.
type Settings struct {
	WIPLimit           int
	AutoTimeoutMinutes int
	WorkdayHours       int
	DifficultyWeights  map[string]float64
}

func DefaultSettings() Settings {
	return Settings{
		WIPLimit:           1,
		AutoTimeoutMinutes: 120,
		WorkdayHours:       8,
		DifficultyWeights: map[string]float64{
			DifficultyEasy:     1.0,
			DifficultyNormal:   1.5,
			DifficultyHard:     2.0,
			DifficultyVeryHard: 2.5,
		},
	}
}

func (s Settings) DifficultyWeight(difficulty string) float64 {
	if w, ok := s.DifficultyWeights[NormalizeDifficulty(difficulty)]; ok {
		return w
	}
	return 1.0
}

// WeightedCases sums per-difficulty case counts scaled by their configured
// weights. Unknown difficulties weigh 1.0.
func (s Settings) WeightedCases(byDifficulty map[string]int) float64 {
	total := 0.0
	for difficulty, count := range byDifficulty {
		total += float64(count) * s.DifficultyWeight(difficulty)
	}
	return total
}
