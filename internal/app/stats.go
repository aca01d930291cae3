package app

import "studyquiz/internal/domain"

// ComputeStats derives dashboard figures from a user's quiz documents.
// Rates and averages are rounded to whole numbers.
func ComputeStats(quizzes []domain.Quiz) domain.Stats {
	stats := domain.Stats{TotalQuizzes: len(quizzes)}
	scoreSum := 0
	for _, q := range quizzes {
		if !q.Completed {
			continue
		}
		stats.CompletedQuizzes++
		if q.Results != nil {
			scoreSum += q.Results.Score
			stats.TotalTimeSpent += q.Results.TimeSpent
		}
	}
	if stats.TotalQuizzes > 0 {
		stats.CompletionRate = roundDiv(stats.CompletedQuizzes*100, stats.TotalQuizzes)
	}
	if stats.CompletedQuizzes > 0 {
		stats.AverageScore = roundDiv(scoreSum, stats.CompletedQuizzes)
	}
	return stats
}

func roundDiv(a, b int) int {
	return (a*2 + b) / (b * 2)
}
