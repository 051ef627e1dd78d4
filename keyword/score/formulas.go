// Package score turns App Store search data into keyword difficulty,
// popularity and opportunity scores.
//
// All formulas are pure functions of their inputs. Two opportunity forms
// exist: WeightedOpportunity ranks analyses on the discovery path, and
// RatioOpportunity is what the scheduler stores on job results so values stay
// comparable across cycles. They are not interchangeable.
package score

import (
	"strings"
	"unicode/utf8"

	"github.com/teranos/kwpulse/catalog"
	"github.com/teranos/kwpulse/internal/util"
)

const (
	// EmptyDifficulty is the difficulty of a keyword with no search results
	EmptyDifficulty = 10

	MinPopularity = 5
	MaxPopularity = 100
)

// Difficulty scores how hard it is to rank for a keyword, 0 to 100.
func Difficulty(apps []catalog.App) int {
	n := len(apps)
	if n == 0 {
		return EmptyDifficulty
	}

	var sumRating, sumCount float64
	for _, a := range apps {
		sumRating += a.Rating
		sumCount += float64(a.RatingCount)
	}
	avgRating := sumRating / float64(n)
	avgCount := sumCount / float64(n)

	top := apps
	if len(top) > 3 {
		top = top[:3]
	}
	var topStrength float64
	for _, a := range top {
		topStrength += 0.3*(a.Rating/5) + 0.7*util.Saturate(float64(a.RatingCount), 500_000)
	}
	topStrength /= float64(len(top))

	raw := 0.15*(avgRating/5) +
		0.35*util.Saturate(avgCount, 100_000) +
		0.30*topStrength +
		0.20*util.Saturate(float64(n), 10)

	return util.RoundInt(util.Clamp(raw*100, 0, 100))
}

// Popularity estimates search volume for a keyword, 5 to 100.
func Popularity(keyword string, hints []catalog.Hint, apps []catalog.App) int {
	score := float64(MinPopularity)

	needle := util.NormalizeKeyword(keyword)
	for pos, h := range hints {
		if util.NormalizeKeyword(h.Keyword) != needle {
			continue
		}
		score += max(0, 50-5*float64(pos))
		score += min(float64(h.Priority)/2, 25)
		break
	}

	if len(apps) > 0 {
		var sum float64
		for _, a := range apps {
			sum += float64(a.RatingCount)
		}
		score += min(sum/float64(len(apps))/10_000, 20)
	}

	switch n := utf8.RuneCountInString(strings.TrimSpace(keyword)); {
	case n <= 5:
		score += 10
	case n <= 10:
		score += 5
	}

	return util.RoundInt(util.Clamp(score, MinPopularity, MaxPopularity))
}

// WeightedOpportunity blends popularity (60%) with an inverted difficulty
// band (40%). Difficulty up to 30 scores fully; above 60 it scores 0.3.
func WeightedOpportunity(popularity, difficulty int) int {
	var diffScore float64
	switch d := float64(difficulty); {
	case d <= 30:
		diffScore = 1.0
	case d <= 60:
		diffScore = 1.0 - (d-30)/30*0.7
	default:
		diffScore = 0.3
	}
	return util.RoundInt(float64(popularity)/100*60 + diffScore*40)
}

// RatioOpportunity is popularity over difficulty scaled by 10.
// Zero difficulty counts as 1.
func RatioOpportunity(popularity, difficulty int) int {
	return util.RoundInt(float64(popularity) / float64(max(difficulty, 1)) * 10)
}
