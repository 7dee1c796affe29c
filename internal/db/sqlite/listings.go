package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
)

const listingColumns = `id, owner_id, title, description, category, tags, price_per_hour,
	city, lat, lng, status, is_published, is_premium, media_count, views_count,
	owner_name, owner_rating, owner_reviews, owner_verified, created_at, updated_at`

// GetListing loads one listing with its services.
func (s *Store) GetListing(ctx context.Context, id int64) (*record.ListingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)

	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrRecordNotFound
		}
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	if err := s.attachListingServices(ctx, []*record.ListingRecord{l}); err != nil {
		return nil, err
	}
	return l, nil
}

// SaveListing upserts a listing and replaces its service rows.
func (s *Store) SaveListing(ctx context.Context, l *record.ListingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	defer tx.Rollback()

	var lat, lng any
	if l.Location != nil {
		lat, lng = l.Location.Lat, l.Location.Lng
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id=excluded.owner_id, title=excluded.title,
			description=excluded.description, category=excluded.category,
			tags=excluded.tags, price_per_hour=excluded.price_per_hour,
			city=excluded.city, lat=excluded.lat, lng=excluded.lng,
			status=excluded.status, is_published=excluded.is_published,
			is_premium=excluded.is_premium, media_count=excluded.media_count,
			views_count=excluded.views_count, owner_name=excluded.owner_name,
			owner_rating=excluded.owner_rating, owner_reviews=excluded.owner_reviews,
			owner_verified=excluded.owner_verified,
			created_at=excluded.created_at, updated_at=excluded.updated_at`,
		l.ID, l.OwnerID, l.Title, l.Description, l.Category,
		strings.Join(l.Tags, ","), l.PricePerHour, l.City, lat, lng,
		l.Status, boolToInt(l.IsPublished), boolToInt(l.IsPremium),
		l.MediaCount, l.ViewsCount, l.OwnerName, l.OwnerRating,
		l.OwnerReviews, boolToInt(l.OwnerVerified),
		l.CreatedAt.Unix(), l.UpdatedAt.Unix(),
	)
	if err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}

	if err := replaceServices(ctx, tx, string(record.Listing), l.ID, l.Services); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

// SearchListings runs a filtered, sorted page query and returns the page
// plus the total match count.
func (s *Store) SearchListings(ctx context.Context, q *db.RelationalQuery) ([]record.ListingRecord, int, error) {
	where, args := listingWhere(q)

	var total int
	countQ := `SELECT COUNT(*) FROM listings WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	if total == 0 {
		return nil, 0, nil
	}

	pageQ := `SELECT ` + listingColumns + ` FROM listings WHERE ` + where +
		` ORDER BY ` + listingOrder(q.Sort) + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset)

	items, err := s.queryListings(ctx, pageQ, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// QuickListings returns active listings whose title starts with prefix.
func (s *Store) QuickListings(ctx context.Context, prefix string, limit int) ([]record.ListingRecord, error) {
	return s.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE status = 'active' AND is_published = 1
		  AND title LIKE ? ESCAPE '\'
		ORDER BY views_count DESC, id
		LIMIT ?`,
		prefixPattern(prefix), limit)
}

// SimilarListings finds listings related to ref by category, price band
// (±30%) or overlapping tags, excluding ref itself and the given ids.
// Category matches rank first.
func (s *Store) SimilarListings(ctx context.Context, ref *record.ListingRecord, exclude []int64, limit int) ([]record.ListingRecord, error) {
	excluded := append([]int64{ref.ID}, exclude...)

	conds := []string{"category = ?", "price_per_hour BETWEEN ? AND ?"}
	args := []any{
		ref.Category,
		int(float64(ref.PricePerHour) * 0.7), int(float64(ref.PricePerHour) * 1.3),
	}
	for _, tag := range ref.Tags {
		conds = append(conds, `tags LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(tag))
	}

	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE status = 'active' AND is_published = 1
		  AND id NOT IN (` + placeholders(len(excluded)) + `)
		  AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY (category = ?) DESC, owner_rating DESC, id
		LIMIT ?`

	full := make([]any, 0, len(excluded)+len(args)+2)
	for _, id := range excluded {
		full = append(full, id)
	}
	full = append(full, args...)
	full = append(full, ref.Category, limit)

	return s.queryListings(ctx, query, full...)
}

// EligibleListings pages through index-eligible listings ordered by id.
func (s *Store) EligibleListings(ctx context.Context, offset, limit int) ([]record.ListingRecord, error) {
	return s.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE status = 'active' AND is_published = 1
		ORDER BY id
		LIMIT ? OFFSET ?`, limit, offset)
}

// ListingsChangedSince returns every listing updated at or after since,
// eligible or not.
func (s *Store) ListingsChangedSince(ctx context.Context, since time.Time) ([]record.ListingRecord, error) {
	return s.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE updated_at >= ?
		ORDER BY updated_at, id`, since.Unix())
}

// ListingFacets counts distinct values of a whitelisted column over the
// filtered set, most frequent first.
func (s *Store) ListingFacets(ctx context.Context, q *db.RelationalQuery, field string, size int) ([]db.FacetBucket, error) {
	col, ok := listingFacetColumns[field]
	if !ok {
		return nil, fmt.Errorf("unsupported facet field %q", field)
	}
	where, args := listingWhere(q)

	query := `SELECT ` + col + `, COUNT(*) AS n FROM listings
		WHERE ` + where + ` AND ` + col + ` != ''
		GROUP BY ` + col + `
		ORDER BY n DESC, ` + col + `
		LIMIT ?`
	args = append(args, size)

	return s.queryFacets(ctx, query, args...)
}

var listingFacetColumns = map[string]string{
	"category": "category",
	"city":     "city",
}

// --- internals ---

func listingWhere(q *db.RelationalQuery) (string, []any) {
	conds := []string{"status = 'active'", "is_published = 1"}
	var args []any

	if q.Text != "" {
		conds = append(conds, `(
			title LIKE ? ESCAPE '\'
			OR description LIKE ? ESCAPE '\'
			OR tags LIKE ? ESCAPE '\'
			OR owner_name LIKE ? ESCAPE '\'
			OR EXISTS (
				SELECT 1 FROM services sv
				WHERE sv.owner_type = 'listing' AND sv.owner_id = listings.id
				  AND sv.name LIKE ? ESCAPE '\'
			)
		)`)
		p := likePattern(q.Text)
		args = append(args, p, p, p, p, p)
	}

	for key, v := range q.Filters {
		switch key {
		case "category":
			conds = append(conds, "category = ?")
			args = append(args, v.Text())
		case "city":
			conds = append(conds, "city = ?")
			args = append(args, v.Text())
		case "price_min":
			conds = append(conds, "price_per_hour >= ?")
			args = append(args, int(v.Num()))
		case "price_max":
			conds = append(conds, "price_per_hour <= ?")
			args = append(args, int(v.Num()))
		case "rating_min":
			conds = append(conds, "owner_rating >= ?")
			args = append(args, v.Num())
		case "is_premium":
			if v.Flag() {
				conds = append(conds, "is_premium = 1")
			}
		case "services":
			names := v.List()
			if len(names) == 0 {
				continue
			}
			conds = append(conds, `EXISTS (
				SELECT 1 FROM services sv
				WHERE sv.owner_type = 'listing' AND sv.owner_id = listings.id
				  AND sv.name IN (`+placeholders(len(names))+`)
			)`)
			for _, n := range names {
				args = append(args, n)
			}
		}
	}

	return strings.Join(conds, " AND "), args
}

func listingOrder(sort sortby.SortBy) string {
	switch sort {
	case sortby.Rating:
		return "owner_rating DESC, owner_reviews DESC, id"
	case sortby.PriceAsc:
		return "price_per_hour ASC, id"
	case sortby.PriceDesc:
		return "price_per_hour DESC, id"
	case sortby.Newest:
		return "created_at DESC, id"
	case sortby.Popular:
		return "views_count DESC, id"
	default:
		// Relevance and Distance; distance ordering happens in the engine.
		return "is_premium DESC, owner_rating DESC, owner_reviews DESC, id"
	}
}

func (s *Store) queryListings(ctx context.Context, query string, args ...any) ([]record.ListingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []record.ListingRecord
	var ptrs []*record.ListingRecord
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	for i := range out {
		ptrs = append(ptrs, &out[i])
	}
	if err := s.attachListingServices(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*record.ListingRecord, error) {
	var (
		l          record.ListingRecord
		tags       string
		lat, lng   sql.NullFloat64
		published  int
		premium    int
		verified   int
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Category, &tags,
		&l.PricePerHour, &l.City, &lat, &lng, &l.Status, &published, &premium,
		&l.MediaCount, &l.ViewsCount, &l.OwnerName, &l.OwnerRating,
		&l.OwnerReviews, &verified, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tags != "" {
		l.Tags = strings.Split(tags, ",")
	}
	if lat.Valid && lng.Valid {
		l.Location = &record.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	l.IsPublished = published != 0
	l.IsPremium = premium != 0
	l.OwnerVerified = verified != 0
	l.CreatedAt = time.Unix(createdAt, 0).UTC()
	l.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &l, nil
}

func (s *Store) attachListingServices(ctx context.Context, listings []*record.ListingRecord) error {
	if len(listings) == 0 {
		return nil
	}

	ids := make([]any, 0, len(listings)+1)
	ids = append(ids, string(record.Listing))
	byID := make(map[int64]*record.ListingRecord, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
		byID[l.ID] = l
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, id, name, category, price, duration_min FROM services
		WHERE owner_type = ? AND owner_id IN (`+placeholders(len(listings))+`)
		ORDER BY id`, ids...)
	if err != nil {
		return &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID int64
		var svc record.Service
		if err := rows.Scan(&ownerID, &svc.ID, &svc.Name, &svc.Category, &svc.Price, &svc.DurationMin); err != nil {
			return &db.Error{Op: db.OpQuery, Err: err}
		}
		if l, ok := byID[ownerID]; ok {
			l.Services = append(l.Services, svc)
		}
	}
	return rows.Err()
}

func replaceServices(ctx context.Context, tx *sql.Tx, ownerType string, ownerID int64, services []record.Service) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM services WHERE owner_type = ? AND owner_id = ?`, ownerType, ownerID); err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	for _, svc := range services {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO services (owner_type, owner_id, name, category, price, duration_min)
			VALUES (?,?,?,?,?,?)`,
			ownerType, ownerID, svc.Name, svc.Category, svc.Price, svc.DurationMin); err != nil {
			return &db.Error{Op: db.OpExec, Err: err}
		}
	}
	return nil
}
