// Package transform projects primary-store records into flattened index
// documents, computing all ranking signals in the same pass.
package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/marketsearch/internal/domain/document"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
)

// ListingSnapshot extracts the ranking inputs of a listing.
func ListingSnapshot(l *record.ListingRecord) document.Snapshot {
	return document.Snapshot{
		Rating:            l.OwnerRating,
		ReviewsCount:      l.OwnerReviews,
		Verified:          l.OwnerVerified,
		Premium:           l.IsPremium,
		UpdatedAt:         l.UpdatedAt,
		MediaCount:        l.MediaCount,
		DescriptionLength: len(l.Description),
		HasCoordinates:    l.Location != nil && !l.Location.IsZero(),
	}
}

// ListingDocument flattens a listing into its index projection. The four
// ranking signals are recomputed together from the same snapshot.
func ListingDocument(l *record.ListingRecord, now time.Time) *document.Document {
	signals := document.ListingSignals(ListingSnapshot(l), now)

	fields := map[string]string{
		"id":             strconv.FormatInt(l.ID, 10),
		"title":          l.Title,
		"description":    l.Description,
		"category":       l.Category,
		"tags":           strings.Join(l.Tags, ","),
		"services":       serviceNames(l.Services),
		"price_per_hour": strconv.Itoa(l.PricePerHour),
		"city":           l.City,
		"owner_id":       strconv.FormatInt(l.OwnerID, 10),
		"owner_name":     l.OwnerName,
		"rating":         formatFloat(l.OwnerRating),
		"reviews":        strconv.Itoa(l.OwnerReviews),
		"views":          strconv.Itoa(l.ViewsCount),
		"media_count":    strconv.Itoa(l.MediaCount),
		"premium":        formatBool(l.IsPremium),
		"verified":       formatBool(l.OwnerVerified),
		"created_ts":     strconv.FormatInt(l.CreatedAt.Unix(), 10),
		"updated_ts":     strconv.FormatInt(l.UpdatedAt.Unix(), 10),
	}
	applySignals(fields, signals)
	applyLocation(fields, l.Location)

	return &document.Document{
		ID:       l.ID,
		Type:     record.Listing,
		Fields:   fields,
		Location: l.Location,
		Signals:  signals,
	}
}

func serviceNames(services []record.Service) string {
	if len(services) == 0 {
		return ""
	}
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	return strings.Join(names, ",")
}

func applySignals(fields map[string]string, s document.Signals) {
	fields["boost_score"] = formatFloat(s.BoostScore)
	fields["quality_score"] = formatFloat(s.QualityScore)
	fields["activity_score"] = formatFloat(s.ActivityScore)
	fields["completeness"] = formatFloat(s.ProfileCompleteness)
}

// applyLocation stores the geo field in the "lng,lat" form the index
// service expects. Records without coordinates get no geo field at all.
func applyLocation(fields map[string]string, p *record.Point) {
	if p == nil || p.IsZero() {
		return
	}
	fields["location"] = formatFloat(p.Lng) + "," + formatFloat(p.Lat)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
