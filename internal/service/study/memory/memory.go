// Package memory implements the continuous memory model: card retrievability
// under exponential forgetting, and the per-rating constant tables the
// update engine draws on.
package memory

import (
	"math"
	"time"

	"github.com/avolkov/srscore/internal/config"
	"github.com/avolkov/srscore/internal/domain"
)

// Params is the memory model's constant table, sourced from config.SRSConfig.
// All fields are tunable; see config.SRSConfig for recommended defaults.
type Params struct {
	RTarget           float64
	SMin              float64
	DMin              float64
	DMax              float64
	K                 float64
	KFail             float64
	Alpha             float64
	Eta               float64
	InitialStability  float64
	InitialDifficulty float64

	BaseGain map[domain.Grade]float64
	URating  map[domain.Grade]float64
}

// FromConfig builds a Params table from the loaded SRSConfig.
func FromConfig(c config.SRSConfig) Params {
	return Params{
		RTarget:           c.RTarget,
		SMin:              c.SMin,
		DMin:              c.DMin,
		DMax:              c.DMax,
		K:                 c.K,
		KFail:             c.KFail,
		Alpha:             c.Alpha,
		Eta:               c.Eta,
		InitialStability:  c.InitialStability,
		InitialDifficulty: c.InitialDifficulty,
		BaseGain: map[domain.Grade]float64{
			domain.GradeHard:   c.BaseGainHard,
			domain.GradeMedium: c.BaseGainMedium,
			domain.GradeEasy:   c.BaseGainEasy,
		},
		URating: map[domain.Grade]float64{
			domain.GradeAgain:  c.URatingAgain,
			domain.GradeHard:   c.URatingHard,
			domain.GradeMedium: c.URatingMedium,
			domain.GradeEasy:   c.URatingEasy,
		},
	}
}

// Default returns the recommended-default constant table from spec §4.1,
// independent of any loaded configuration. Useful for tests.
func Default() Params {
	return Params{
		RTarget:           0.70,
		SMin:              0.5,
		DMin:              1.0,
		DMax:              10.0,
		K:                 1.2,
		KFail:             0.6,
		Alpha:             0.15,
		Eta:               0.8,
		InitialStability:  4.0,
		InitialDifficulty: 5.0,
		BaseGain: map[domain.Grade]float64{
			domain.GradeHard:   0.5,
			domain.GradeMedium: 1.0,
			domain.GradeEasy:   1.8,
		},
		URating: map[domain.Grade]float64{
			domain.GradeAgain:  1.0,
			domain.GradeHard:   0.35,
			domain.GradeMedium: -0.20,
			domain.GradeEasy:   -0.60,
		},
	}
}

// ElapsedDays returns the fractional number of days between lastLTM and now,
// clamped to zero when clock skew would otherwise yield a negative value.
func ElapsedDays(lastLTM *time.Time, now time.Time) float64 {
	if lastLTM == nil {
		return 0
	}
	dt := now.Sub(*lastLTM).Hours() / 24
	if dt < 0 {
		return 0
	}
	return dt
}

// Retrievability computes R = exp(-Δt/S). A card with no LTM review yet has
// R = 1.0 by definition. The result is clamped to [0,1] to guard against
// floating-point artefacts from exp.
func Retrievability(stability float64, lastLTM *time.Time, now time.Time) float64 {
	if lastLTM == nil {
		return 1.0
	}
	dt := ElapsedDays(lastLTM, now)
	r := math.Exp(-dt / stability)
	return clamp(r, 0, 1)
}

// DifficultyPenalty is f(D_eff) = 1 / (1 + ALPHA*(D_eff-1)).
func (p Params) DifficultyPenalty(dEff float64) float64 {
	return 1 / (1 + p.Alpha*(dEff-1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ClipDifficulty constrains a difficulty value to [DMin, DMax].
func (p Params) ClipDifficulty(d float64) float64 {
	return clamp(d, p.DMin, p.DMax)
}
