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

const providerColumns = `id, name, bio, specialty, city, phone, rating, reviews_count,
	repeat_clients_percent, experience_years, completed_orders_30d, is_verified,
	is_premium, has_schedule, services_count, media_count, education_count,
	certificate_count, lat, lng, status, last_active_at, created_at, updated_at`

// GetProvider loads one provider profile with its services.
func (s *Store) GetProvider(ctx context.Context, id int64) (*record.ProviderRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = ?`, id)

	p, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrRecordNotFound
		}
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	if err := s.attachProviderServices(ctx, []*record.ProviderRecord{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProvider upserts a provider profile and replaces its service rows.
func (s *Store) SaveProvider(ctx context.Context, p *record.ProviderRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	defer tx.Rollback()

	var lat, lng any
	if p.Location != nil {
		lat, lng = p.Location.Lat, p.Location.Lng
	}
	var lastActive any
	if p.LastActiveAt != nil {
		lastActive = p.LastActiveAt.Unix()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO providers (`+providerColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, bio=excluded.bio, specialty=excluded.specialty,
			city=excluded.city, phone=excluded.phone, rating=excluded.rating,
			reviews_count=excluded.reviews_count,
			repeat_clients_percent=excluded.repeat_clients_percent,
			experience_years=excluded.experience_years,
			completed_orders_30d=excluded.completed_orders_30d,
			is_verified=excluded.is_verified, is_premium=excluded.is_premium,
			has_schedule=excluded.has_schedule, services_count=excluded.services_count,
			media_count=excluded.media_count, education_count=excluded.education_count,
			certificate_count=excluded.certificate_count,
			lat=excluded.lat, lng=excluded.lng, status=excluded.status,
			last_active_at=excluded.last_active_at,
			created_at=excluded.created_at, updated_at=excluded.updated_at`,
		p.ID, p.Name, p.Bio, p.Specialty, p.City, p.Phone, p.Rating,
		p.ReviewsCount, p.RepeatClientsPercent, p.ExperienceYears,
		p.CompletedOrders30d, boolToInt(p.IsVerified), boolToInt(p.IsPremium),
		boolToInt(p.HasSchedule), p.ServicesCount, p.MediaCount,
		p.EducationCount, p.CertificateCount, lat, lng, p.Status,
		lastActive, p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}

	if err := replaceServices(ctx, tx, string(record.Provider), p.ID, p.Services); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

// SearchProviders runs a filtered, sorted page query and returns the page
// plus the total match count.
func (s *Store) SearchProviders(ctx context.Context, q *db.RelationalQuery) ([]record.ProviderRecord, int, error) {
	where, args := providerWhere(q)

	var total int
	countQ := `SELECT COUNT(*) FROM providers WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	if total == 0 {
		return nil, 0, nil
	}

	pageQ := `SELECT ` + providerColumns + ` FROM providers WHERE ` + where +
		` ORDER BY ` + providerOrder(q.Sort) + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset)

	items, err := s.queryProviders(ctx, pageQ, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// QuickProviders returns active providers whose name starts with prefix.
func (s *Store) QuickProviders(ctx context.Context, prefix string, limit int) ([]record.ProviderRecord, error) {
	return s.queryProviders(ctx, `
		SELECT `+providerColumns+` FROM providers
		WHERE status = 'active'
		  AND name LIKE ? ESCAPE '\'
		ORDER BY rating DESC, reviews_count DESC, id
		LIMIT ?`,
		prefixPattern(prefix), limit)
}

// EligibleProviders pages through index-eligible providers ordered by id.
func (s *Store) EligibleProviders(ctx context.Context, offset, limit int) ([]record.ProviderRecord, error) {
	return s.queryProviders(ctx, `
		SELECT `+providerColumns+` FROM providers
		WHERE status = 'active'
		ORDER BY id
		LIMIT ? OFFSET ?`, limit, offset)
}

// ProvidersChangedSince returns every provider updated at or after since,
// eligible or not.
func (s *Store) ProvidersChangedSince(ctx context.Context, since time.Time) ([]record.ProviderRecord, error) {
	return s.queryProviders(ctx, `
		SELECT `+providerColumns+` FROM providers
		WHERE updated_at >= ?
		ORDER BY updated_at, id`, since.Unix())
}

// ProviderFacets counts distinct values of a whitelisted column over the
// filtered set, most frequent first.
func (s *Store) ProviderFacets(ctx context.Context, q *db.RelationalQuery, field string, size int) ([]db.FacetBucket, error) {
	col, ok := providerFacetColumns[field]
	if !ok {
		return nil, fmt.Errorf("unsupported facet field %q", field)
	}
	where, args := providerWhere(q)

	query := `SELECT ` + col + `, COUNT(*) AS n FROM providers
		WHERE ` + where + ` AND ` + col + ` != ''
		GROUP BY ` + col + `
		ORDER BY n DESC, ` + col + `
		LIMIT ?`
	args = append(args, size)

	return s.queryFacets(ctx, query, args...)
}

var providerFacetColumns = map[string]string{
	"city":      "city",
	"specialty": "specialty",
}

// --- internals ---

func providerWhere(q *db.RelationalQuery) (string, []any) {
	conds := []string{"status = 'active'"}
	var args []any

	if q.Text != "" {
		conds = append(conds, `(
			name LIKE ? ESCAPE '\'
			OR specialty LIKE ? ESCAPE '\'
			OR bio LIKE ? ESCAPE '\'
			OR city LIKE ? ESCAPE '\'
		)`)
		p := likePattern(q.Text)
		args = append(args, p, p, p, p)
	}

	for key, v := range q.Filters {
		switch key {
		case "rating_min":
			conds = append(conds, "rating >= ?")
			args = append(args, v.Num())
		case "experience_min":
			conds = append(conds, "experience_years >= ?")
			args = append(args, int(v.Num()))
		case "city":
			conds = append(conds, "city = ?")
			args = append(args, v.Text())
		case "specialization":
			conds = append(conds, `specialty LIKE ? ESCAPE '\'`)
			args = append(args, likePattern(v.Text()))
		case "verified":
			if v.Flag() {
				conds = append(conds, "is_verified = 1")
			}
		}
	}

	return strings.Join(conds, " AND "), args
}

func providerOrder(sort sortby.SortBy) string {
	switch sort {
	case sortby.Rating:
		return "rating DESC, reviews_count DESC, id"
	case sortby.Newest:
		return "created_at DESC, id"
	case sortby.Popular:
		return "completed_orders_30d DESC, reviews_count DESC, id"
	default:
		// Relevance, Distance and the price sorts, which providers lack.
		return "is_premium DESC, rating DESC, reviews_count DESC, id"
	}
}

func (s *Store) queryProviders(ctx context.Context, query string, args ...any) ([]record.ProviderRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []record.ProviderRecord
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	ptrs := make([]*record.ProviderRecord, 0, len(out))
	for i := range out {
		ptrs = append(ptrs, &out[i])
	}
	if err := s.attachProviderServices(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

func scanProvider(row rowScanner) (*record.ProviderRecord, error) {
	var (
		p          record.ProviderRecord
		lat, lng   sql.NullFloat64
		verified   int
		premium    int
		schedule   int
		lastActive sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(
		&p.ID, &p.Name, &p.Bio, &p.Specialty, &p.City, &p.Phone, &p.Rating,
		&p.ReviewsCount, &p.RepeatClientsPercent, &p.ExperienceYears,
		&p.CompletedOrders30d, &verified, &premium, &schedule,
		&p.ServicesCount, &p.MediaCount, &p.EducationCount, &p.CertificateCount,
		&lat, &lng, &p.Status, &lastActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		p.Location = &record.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	p.IsVerified = verified != 0
	p.IsPremium = premium != 0
	p.HasSchedule = schedule != 0
	if lastActive.Valid {
		t := time.Unix(lastActive.Int64, 0).UTC()
		p.LastActiveAt = &t
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

func (s *Store) attachProviderServices(ctx context.Context, providers []*record.ProviderRecord) error {
	if len(providers) == 0 {
		return nil
	}

	ids := make([]any, 0, len(providers)+1)
	ids = append(ids, string(record.Provider))
	byID := make(map[int64]*record.ProviderRecord, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, id, name, category, price, duration_min FROM services
		WHERE owner_type = ? AND owner_id IN (`+placeholders(len(providers))+`)
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
		if p, ok := byID[ownerID]; ok {
			p.Services = append(p.Services, svc)
		}
	}
	return rows.Err()
}

// queryFacets runs a two-column (value, count) aggregation query.
func (s *Store) queryFacets(ctx context.Context, query string, args ...any) ([]db.FacetBucket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []db.FacetBucket
	for rows.Next() {
		var b db.FacetBucket
		if err := rows.Scan(&b.Value, &b.Count); err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
