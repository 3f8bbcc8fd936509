package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FitnessSummary condenses a run's best-per-generation series.
type FitnessSummary struct {
	RunID       string  `json:"run_id"`
	Generations int     `json:"generations"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	BestMax     float64 `json:"best_max"`
	BestMin     float64 `json:"best_min"`
	Improvement float64 `json:"improvement"`
	// Stagnation is the number of trailing generations without a new maximum.
	Stagnation int `json:"stagnation"`
}

func Summarize(runID string, series []float64) (FitnessSummary, error) {
	if len(series) == 0 {
		return FitnessSummary{}, fmt.Errorf("run %s has no fitness history", runID)
	}
	mean, std := stat.MeanStdDev(series, nil)
	if len(series) < 2 {
		std = 0
	}
	best := floats.Max(series)
	last := floats.MaxIdx(series)
	return FitnessSummary{
		RunID:       runID,
		Generations: len(series),
		InitialBest: series[0],
		FinalBest:   series[len(series)-1],
		BestMean:    mean,
		BestStd:     std,
		BestMax:     best,
		BestMin:     floats.Min(series),
		Improvement: series[len(series)-1] - series[0],
		Stagnation:  len(series) - 1 - last,
	}, nil
}
