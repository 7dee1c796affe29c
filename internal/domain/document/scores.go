package document

import (
	"math"
	"time"
)

// Snapshot is a plain view of the ranking inputs of one record, taken at
// transform time. The score functions below are deterministic over a
// snapshot and a reference clock, so reindexing an unchanged record with
// the same clock yields byte-identical signals.
type Snapshot struct {
	Rating               float64
	ReviewsCount         int
	RepeatClientsPercent int
	Verified             bool
	Premium              bool

	LastActiveAt       *time.Time
	UpdatedAt          time.Time
	CompletedOrders30d int

	BioLength        int
	HasPhone         bool
	ServicesCount    int
	HasSchedule      bool
	MediaCount       int
	EducationCount   int
	CertificateCount int
	HasCoordinates   bool

	DescriptionLength int
}

// round2 keeps score values stable across recomputation.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// QualityScore weighs rating tier, review-count tier, repeat-client share
// and verification into [0,1].
func QualityScore(s Snapshot) float64 {
	score := 0.0

	switch {
	case s.Rating >= 4.8:
		score += 0.4
	case s.Rating >= 4.5:
		score += 0.3
	case s.Rating >= 4.0:
		score += 0.2
	case s.Rating >= 3.5:
		score += 0.1
	}

	switch {
	case s.ReviewsCount >= 100:
		score += 0.3
	case s.ReviewsCount >= 50:
		score += 0.2
	case s.ReviewsCount >= 20:
		score += 0.1
	}

	switch {
	case s.RepeatClientsPercent >= 70:
		score += 0.2
	case s.RepeatClientsPercent >= 50:
		score += 0.1
	}

	if s.Verified {
		score += 0.1
	}

	return round2(clamp01(score))
}

// ActivityScore weighs recency of last activity, recency of the profile
// update and 30-day completed-order volume. The tier caps sum to 1.0 by
// construction; the clamp guards the invariant anyway.
func ActivityScore(s Snapshot, now time.Time) float64 {
	score := 0.0

	if s.LastActiveAt != nil {
		switch {
		case s.LastActiveAt.After(now.Add(-24 * time.Hour)):
			score += 0.4
		case s.LastActiveAt.After(now.AddDate(0, 0, -7)):
			score += 0.2
		case s.LastActiveAt.After(now.AddDate(0, 0, -30)):
			score += 0.1
		}
	}

	switch {
	case s.UpdatedAt.After(now.AddDate(0, 0, -7)):
		score += 0.3
	case s.UpdatedAt.After(now.AddDate(0, 0, -30)):
		score += 0.1
	}

	switch {
	case s.CompletedOrders30d >= 20:
		score += 0.3
	case s.CompletedOrders30d >= 10:
		score += 0.2
	case s.CompletedOrders30d >= 5:
		score += 0.1
	}

	return round2(clamp01(score))
}

// ProfileCompleteness sums fixed per-field point values and divides by 100.
func ProfileCompleteness(s Snapshot) float64 {
	score := 0

	if s.BioLength > 100 {
		score += 15
	}
	if s.HasPhone {
		score += 10
	}
	if s.ServicesCount >= 3 {
		score += 20
	}
	if s.HasSchedule {
		score += 15
	}
	if s.MediaCount >= 3 {
		score += 15
	}
	if s.EducationCount > 0 {
		score += 10
	}
	if s.CertificateCount > 0 {
		score += 10
	}
	if s.HasCoordinates {
		score += 5
	}

	return round2(float64(score) / 100)
}

// ListingBoost is the additive, threshold-gated ranking multiplier for
// listings. Base 1.0; every contribution is gated on a tier.
func ListingBoost(s Snapshot, now time.Time) float64 {
	score := 1.0

	if s.Premium {
		score += 0.5
	}
	if s.Verified {
		score += 0.3
	}

	switch {
	case s.Rating >= 4.5:
		score += 0.4
	case s.Rating >= 4.0:
		score += 0.2
	}

	switch {
	case s.ReviewsCount >= 50:
		score += 0.3
	case s.ReviewsCount >= 20:
		score += 0.2
	case s.ReviewsCount >= 10:
		score += 0.1
	}

	switch {
	case s.MediaCount >= 5:
		score += 0.2
	case s.MediaCount >= 3:
		score += 0.1
	}

	if s.DescriptionLength > 200 {
		score += 0.1
	}

	switch {
	case s.UpdatedAt.After(now.AddDate(0, 0, -7)):
		score += 0.2
	case s.UpdatedAt.After(now.AddDate(0, 0, -30)):
		score += 0.1
	}

	return round2(score)
}

// ProviderBoost blends premium/verification flags with the composite
// quality and completeness signals. Always >= 1.0.
func ProviderBoost(s Snapshot) float64 {
	score := 1.0

	if s.Premium {
		score += 0.5
	}
	if s.Verified {
		score += 0.3
	}

	score += ProfileCompleteness(s) * 0.5
	score += QualityScore(s) * 0.8

	return round2(score)
}

// ListingSignals computes all four signals for a listing snapshot in one
// shot, so they can never be partially stale.
func ListingSignals(s Snapshot, now time.Time) Signals {
	return Signals{
		BoostScore:          ListingBoost(s, now),
		QualityScore:        QualityScore(s),
		ActivityScore:       ActivityScore(s, now),
		ProfileCompleteness: ProfileCompleteness(s),
	}
}

// ProviderSignals computes all four signals for a provider snapshot.
func ProviderSignals(s Snapshot, now time.Time) Signals {
	return Signals{
		BoostScore:          ProviderBoost(s),
		QualityScore:        QualityScore(s),
		ActivityScore:       ActivityScore(s, now),
		ProfileCompleteness: ProfileCompleteness(s),
	}
}
