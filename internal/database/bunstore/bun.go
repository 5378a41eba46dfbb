package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/filter"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/database/textmatch"
	"github.com/platewise/platewise-api/internal/geo"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

type BunStore struct {
	db *bun.DB
}

var _ database.RestaurantRepository = (*BunStore)(nil)

// Open connects to sqlite or postgres and prepares the schema.
func Open(driver, dsn string) (*BunStore, error) {
	switch driver {
	case "sqlite", "":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// A single connection keeps in-memory databases shared across queries.
		sqldb.SetMaxOpenConns(1)
		return NewBunStore(sqldb, sqlitedialect.New())
	case "postgres":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return NewBunStore(sqldb, pgdialect.New())
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func NewBunStore(db *sql.DB, dialect schema.Dialect) (*BunStore, error) {
	bunDB := bun.NewDB(db, dialect)

	store := &BunStore{db: bunDB}

	// Create tables if they don't exist
	ctx := context.Background()
	if _, err := bunDB.NewCreateTable().Model((*models.Restaurant)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create restaurants table: %w", err)
	}
	if _, err := bunDB.NewCreateIndex().Model((*models.Restaurant)(nil)).
		Index("restaurants_geo_idx").IfNotExists().Column("geo_lat", "geo_lng").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create geo index: %w", err)
	}

	return store, nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) FindByID(ctx context.Context, id string) (*models.Restaurant, error) {
	r := new(models.Restaurant)
	if err := s.db.NewSelect().Model(r).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *BunStore) FindByAnchorID(ctx context.Context, anchorID string) (*models.Restaurant, error) {
	r := new(models.Restaurant)
	if err := s.db.NewSelect().Model(r).Where("anchor_id = ?", anchorID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *BunStore) FindByIDs(ctx context.Context, ids []string) ([]*models.Restaurant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*models.Restaurant
	if err := s.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Restaurant, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]*models.Restaurant, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *BunStore) FindByProperties(ctx context.Context, f filter.Filter, page database.Page, sort database.Sort) ([]*models.Restaurant, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var rows []*models.Restaurant
	q := f.Apply(s.db.NewSelect().Model(&rows))
	if col := sort.Column(); col != "" {
		dir := "ASC"
		if sort.Desc {
			dir = "DESC"
		}
		q = q.OrderExpr("? "+dir, bun.Ident(col))
	} else {
		q = q.Order("creation_date ASC")
	}
	q = q.Order("id ASC")
	if page.Size > 0 {
		q = q.Limit(page.Size).Offset(max(page.Index, 0) * page.Size)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BunStore) GeoNear(ctx context.Context, center models.Coordinates, radiusMeters float64, f filter.Filter, page database.Page, sort database.Sort) ([]database.Hit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, nil
	}
	box := geo.BoundingBox(center, radiusMeters)

	var rows []*models.Restaurant
	q := f.Apply(s.db.NewSelect().Model(&rows)).
		Where("geo_lat BETWEEN ? AND ?", box.MinLat, box.MaxLat)
	if !box.WrapsAntimeridian() {
		q = q.Where("geo_lng BETWEEN ? AND ?", box.MinLng, box.MaxLng)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	hits := make([]database.Hit, 0, len(rows))
	for _, r := range rows {
		if !box.ContainsLng(r.Coordinates.Lng) {
			continue
		}
		d := geo.DistanceMeters(center, r.Coordinates)
		if d > radiusMeters {
			continue
		}
		hits = append(hits, database.Hit{Restaurant: r, DistanceMeters: d})
	}
	database.SortHits(hits, sort, database.SortDistance)
	return database.Paginate(hits, page), nil
}

func (s *BunStore) TextSearch(ctx context.Context, query string, f filter.Filter, page database.Page) ([]database.Hit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	tokens := textmatch.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var rows []*models.Restaurant
	q := f.Apply(s.db.NewSelect().Model(&rows)).WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, mf := range textmatch.MappedFields {
			for _, tok := range tokens {
				q = q.WhereOr("lower(CAST(? AS TEXT)) LIKE ?", bun.Ident(mf.Column), likePattern(tok))
			}
		}
		return q
	})
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	hits := make([]database.Hit, 0, len(rows))
	for _, r := range rows {
		if score := textmatch.Score(r, tokens); score > 0 {
			hits = append(hits, database.Hit{Restaurant: r, Score: score})
		}
	}
	database.SortHits(hits, database.Sort{}, database.SortDefault)
	return database.Paginate(hits, page), nil
}

func (s *BunStore) CreateRestaurants(ctx context.Context, batch []*models.Restaurant) ([]*models.Restaurant, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if _, err := s.db.NewInsert().Model(&batch).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to insert restaurants: %w", err)
	}

	// Conflicting rows were skipped; the freshly minted ids tell us which ones landed.
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
	}
	var landed []string
	if err := s.db.NewSelect().Model((*models.Restaurant)(nil)).Column("id").
		Where("id IN (?)", bun.In(ids)).Scan(ctx, &landed); err != nil {
		return nil, fmt.Errorf("failed to read back created restaurants: %w", err)
	}
	ok := make(map[string]bool, len(landed))
	for _, id := range landed {
		ok[id] = true
	}
	created := make([]*models.Restaurant, 0, len(landed))
	for _, r := range batch {
		if ok[r.ID] {
			created = append(created, r)
		}
	}
	return created, nil
}

func (s *BunStore) UpdateRestaurants(ctx context.Context, batch []*models.Restaurant) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, r := range batch {
			res, err := tx.NewUpdate().Model(r).
				ExcludeColumn("id", "anchor_id", "creation_date").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update restaurant %s: %w", r.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("restaurant %s: %w", r.ID, database.ErrNotFound)
			}
		}
		return nil
	})
}

func (s *BunStore) UpsertByID(ctx context.Context, r *models.Restaurant) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*models.Restaurant)(nil)).Where("id = ?", r.ID).Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			_, err = tx.NewUpdate().Model(r).ExcludeColumn("id", "anchor_id", "creation_date").WherePK().Exec(ctx)
			return err
		}
		_, err = tx.NewInsert().Model(r).Exec(ctx)
		return err
	})
}

func (s *BunStore) SetReservationLink(ctx context.Context, id, link string) error {
	res, err := s.db.NewUpdate().Model((*models.Restaurant)(nil)).
		Set("reservation_link = ?", link).
		Set("reservable = ?", true).
		Set("last_updated = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *BunStore) DeleteRestaurant(ctx context.Context, id string) error {
	return database.ErrUnsupported
}

// likePattern builds the SQL prefilter for a lower-cased token. SQLite folds only ASCII case,
// so every non-ASCII rune becomes a one-character wildcard; textmatch.Score does the exact match.
func likePattern(tok string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, r := range tok {
		if r > unicode.MaxASCII {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	b.WriteByte('%')
	return b.String()
}
