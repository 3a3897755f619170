// Package scorer rates each change for notification-worthiness.
package scorer

import (
	"math"

	"github.com/Houeta/listing-monitor/internal/models"
)

// Thresholds configures the scorer. Amounts share the currency of the crawled site.
type Thresholds struct {
	PriceHigh     float64 `mapstructure:"price_high"`
	PriceCritical float64 `mapstructure:"price_critical"`

	// Monthly revenue levels.
	RevenueHigh     float64 `mapstructure:"revenue_high"`
	RevenueCritical float64 `mapstructure:"revenue_critical"`

	// Price change magnitude, in percent of the previous price.
	PctMedium   float64 `mapstructure:"pct_medium"`
	PctHigh     float64 `mapstructure:"pct_high"`
	PctCritical float64 `mapstructure:"pct_critical"`

	AbsChangeHigh float64 `mapstructure:"abs_change_high"`

	// Lower bounds of each category on the 0..100 score scale.
	CategoryMedium   float64 `mapstructure:"category_medium"`
	CategoryHigh     float64 `mapstructure:"category_high"`
	CategoryCritical float64 `mapstructure:"category_critical"`
}

// DefaultThresholds returns the thresholds used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceHigh:        250_000,
		PriceCritical:    1_000_000,
		RevenueHigh:      20_000,
		RevenueCritical:  100_000,
		PctMedium:        5,
		PctHigh:          15,
		PctCritical:      30,
		AbsChangeHigh:    50_000,
		CategoryMedium:   25,
		CategoryHigh:     50,
		CategoryCritical: 75,
	}
}

const (
	baseNew          = 40
	basePriceChanged = 30
	baseRemoved      = 20
	baseModified     = 10

	maxScore = 100
)

// Scorer is a pure function of its thresholds. The zero value scores with zero thresholds,
// so use New.
type Scorer struct {
	t Thresholds
}

// New returns a scorer for t.
func New(t Thresholds) *Scorer {
	return &Scorer{t: t}
}

// Score rates rec in [0, 100] and maps the score onto a category.
func (s *Scorer) Score(rec models.ChangeRecord) (float64, models.Category) {
	score := s.base(rec.ChangeType) + s.valueLevel(rec) + s.magnitude(rec)
	score = math.Min(score, maxScore)

	return score, s.Category(score)
}

// Apply fills Score and Category on every record in place.
func (s *Scorer) Apply(changes []models.ChangeRecord) {
	for i := range changes {
		changes[i].Score, changes[i].Category = s.Score(changes[i])
	}
}

// Category maps a score onto a category. Bounds are inclusive, so a score sitting exactly
// on a boundary lands in the higher category.
func (s *Scorer) Category(score float64) models.Category {
	switch {
	case score >= s.t.CategoryCritical:
		return models.CategoryCritical
	case score >= s.t.CategoryHigh:
		return models.CategoryHigh
	case score >= s.t.CategoryMedium:
		return models.CategoryMedium
	default:
		return models.CategoryLow
	}
}

func (s *Scorer) base(ct models.ChangeType) float64 {
	switch ct {
	case models.ChangeNew:
		return baseNew
	case models.ChangePriceChanged:
		return basePriceChanged
	case models.ChangeRemoved:
		return baseRemoved
	case models.ChangeModified:
		return baseModified
	default:
		return 0
	}
}

// valueLevel rewards listings whose asking price or revenue is large.
func (s *Scorer) valueLevel(rec models.ChangeRecord) float64 {
	l := subject(rec)
	if l == nil {
		return 0
	}

	var points float64
	if p := l.AskingPrice; p != nil {
		switch {
		case *p >= s.t.PriceCritical:
			points += 35
		case *p >= s.t.PriceHigh:
			points += 20
		}
	}
	if r := l.MonthlyRevenue; r != nil {
		switch {
		case *r >= s.t.RevenueCritical:
			points += 25
		case *r >= s.t.RevenueHigh:
			points += 10
		}
	}
	return points
}

// magnitude rewards large asking price moves between before and after.
func (s *Scorer) magnitude(rec models.ChangeRecord) float64 {
	if rec.Before == nil || rec.After == nil {
		return 0
	}
	prev, next := rec.Before.AskingPrice, rec.After.AskingPrice
	if prev == nil || next == nil {
		return 0
	}

	delta := math.Abs(*next - *prev)
	if delta == 0 {
		return 0
	}

	var points float64
	if *prev > 0 {
		pct := delta / *prev * 100
		switch {
		case pct >= s.t.PctCritical:
			points += 30
		case pct >= s.t.PctHigh:
			points += 20
		case pct >= s.t.PctMedium:
			points += 10
		}
	}
	if delta >= s.t.AbsChangeHigh {
		points += 10
	}
	return points
}

// subject is the listing state the change is about: the new one when present.
func subject(rec models.ChangeRecord) *models.Listing {
	if rec.After != nil {
		return rec.After
	}
	return rec.Before
}
