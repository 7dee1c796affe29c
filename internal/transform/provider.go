package transform

import (
	"strconv"
	"time"

	"github.com/kailas-cloud/marketsearch/internal/domain/document"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
)

// ProviderSnapshot extracts the ranking inputs of a provider profile.
func ProviderSnapshot(p *record.ProviderRecord) document.Snapshot {
	return document.Snapshot{
		Rating:               p.Rating,
		ReviewsCount:         p.ReviewsCount,
		RepeatClientsPercent: p.RepeatClientsPercent,
		Verified:             p.IsVerified,
		Premium:              p.IsPremium,
		LastActiveAt:         p.LastActiveAt,
		UpdatedAt:            p.UpdatedAt,
		CompletedOrders30d:   p.CompletedOrders30d,
		BioLength:            len(p.Bio),
		HasPhone:             p.Phone != "",
		ServicesCount:        p.ServicesCount,
		HasSchedule:          p.HasSchedule,
		MediaCount:           p.MediaCount,
		EducationCount:       p.EducationCount,
		CertificateCount:     p.CertificateCount,
		HasCoordinates:       p.Location != nil && !p.Location.IsZero(),
	}
}

// ProviderDocument flattens a provider profile into its index projection.
func ProviderDocument(p *record.ProviderRecord, now time.Time) *document.Document {
	signals := document.ProviderSignals(ProviderSnapshot(p), now)

	fields := map[string]string{
		"id":               strconv.FormatInt(p.ID, 10),
		"name":             p.Name,
		"bio":              p.Bio,
		"specialty":        p.Specialty,
		"city":             p.City,
		"services":         serviceNames(p.Services),
		"rating":           formatFloat(p.Rating),
		"reviews":          strconv.Itoa(p.ReviewsCount),
		"experience_years": strconv.Itoa(p.ExperienceYears),
		"orders_30d":       strconv.Itoa(p.CompletedOrders30d),
		"premium":          formatBool(p.IsPremium),
		"verified":         formatBool(p.IsVerified),
		"created_ts":       strconv.FormatInt(p.CreatedAt.Unix(), 10),
		"updated_ts":       strconv.FormatInt(p.UpdatedAt.Unix(), 10),
	}
	if p.LastActiveAt != nil {
		fields["last_active_ts"] = strconv.FormatInt(p.LastActiveAt.Unix(), 10)
	}
	applySignals(fields, signals)
	applyLocation(fields, p.Location)

	return &document.Document{
		ID:       p.ID,
		Type:     record.Provider,
		Fields:   fields,
		Location: p.Location,
		Signals:  signals,
	}
}
