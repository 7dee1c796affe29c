package record

import "time"

// Type identifies which kind of marketplace record a request targets.
// It is resolved once at the request boundary; nothing downstream sniffs
// filter keys to guess it.
type Type string

const (
	Listing  Type = "listing"
	Provider Type = "provider"
)

// IsValid reports whether t is a known record type.
func (t Type) IsValid() bool {
	return t == Listing || t == Provider
}

// String returns the type tag.
func (t Type) String() string { return string(t) }

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// IsZero reports whether the point carries no usable coordinates.
func (p Point) IsZero() bool { return p.Lat == 0 && p.Lng == 0 }

// Service is a single priced service attached to a listing or a provider.
type Service struct {
	ID          int64
	Name        string
	Category    string
	Price       int
	DurationMin int
}

// ListingRecord is a published service offer as stored in the primary store.
type ListingRecord struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string
	Category    string
	Tags        []string
	Services    []Service

	PricePerHour int
	City         string
	Location     *Point

	Status      string
	IsPublished bool
	IsPremium   bool

	MediaCount    int
	ViewsCount    int
	OwnerName     string
	OwnerRating   float64
	OwnerReviews  int
	OwnerVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Eligible reports whether the listing qualifies for the search index
// (public + active).
func (l *ListingRecord) Eligible() bool {
	return l.Status == "active" && l.IsPublished
}

// ProviderRecord is a service provider's public profile.
type ProviderRecord struct {
	ID        int64
	Name      string
	Bio       string
	Specialty string
	City      string
	Phone     string

	Rating               float64
	ReviewsCount         int
	RepeatClientsPercent int
	ExperienceYears      int
	CompletedOrders30d   int

	IsVerified  bool
	IsPremium   bool
	HasSchedule bool

	ServicesCount    int
	MediaCount       int
	EducationCount   int
	CertificateCount int

	Services []Service
	Location *Point

	Status       string
	LastActiveAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Eligible reports whether the profile qualifies for the search index.
func (p *ProviderRecord) Eligible() bool {
	return p.Status == "active"
}
