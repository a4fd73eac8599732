package persist

import (
	"context"
	"fmt"
	"time"
)

type FlagRow struct {
	ID             int64
	OwnerID        int64
	OwnerName      string
	Name           string
	Lat            float64
	Lng            float64
	Radius         float64
	VisualBoundary float64
	Kind           int16
	Public         bool
	Toll           float64
	Hardened       bool
	Abandoned      bool
	Health         float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastVisited    time.Time
}

type FlagRepo struct {
	db *DB
}

func NewFlagRepo(db *DB) *FlagRepo {
	return &FlagRepo{db: db}
}

const flagUpsertSQL = `
	INSERT INTO flags (
		id, owner_id, owner_name, name, lat, lng, radius, visual_boundary,
		kind, public, toll, hardened, abandoned, health,
		created_at, updated_at, last_visited
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	ON CONFLICT (id) DO UPDATE SET
		owner_id = EXCLUDED.owner_id,
		owner_name = EXCLUDED.owner_name,
		name = EXCLUDED.name,
		toll = EXCLUDED.toll,
		public = EXCLUDED.public,
		hardened = EXCLUDED.hardened,
		abandoned = EXCLUDED.abandoned,
		health = EXCLUDED.health,
		updated_at = EXCLUDED.updated_at,
		last_visited = EXCLUDED.last_visited`

const flagDeleteSQL = `DELETE FROM flags WHERE id = $1`

func (r *FlagRepo) LoadAll(ctx context.Context) ([]FlagRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, owner_id, owner_name, name, lat, lng, radius, visual_boundary,
		        kind, public, toll, hardened, abandoned, health,
		        created_at, updated_at, last_visited
		 FROM flags ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []FlagRow
	for rows.Next() {
		var f FlagRow
		if err := rows.Scan(
			&f.ID, &f.OwnerID, &f.OwnerName, &f.Name, &f.Lat, &f.Lng, &f.Radius, &f.VisualBoundary,
			&f.Kind, &f.Public, &f.Toll, &f.Hardened, &f.Abandoned, &f.Health,
			&f.CreatedAt, &f.UpdatedAt, &f.LastVisited,
		); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *FlagRepo) Upsert(ctx context.Context, f *FlagRow) error {
	_, err := r.db.Pool.Exec(ctx, flagUpsertSQL,
		f.ID, f.OwnerID, f.OwnerName, f.Name, f.Lat, f.Lng, f.Radius, f.VisualBoundary,
		f.Kind, f.Public, f.Toll, f.Hardened, f.Abandoned, f.Health,
		f.CreatedAt, f.UpdatedAt, f.LastVisited,
	)
	return err
}

func (r *FlagRepo) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.db.Pool.Exec(ctx, flagDeleteSQL, id)
	return err
}

// SaveBatch applies a flush batch in one transaction: every dirty flag
// upserted, every removed id deleted. All-or-nothing so a mid-batch
// failure leaves the previous durable state intact.
func (r *FlagRepo) SaveBatch(ctx context.Context, upserts []FlagRow, removed []int64) error {
	if len(upserts) == 0 && len(removed) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("flag batch begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range upserts {
		f := &upserts[i]
		if _, err := tx.Exec(ctx, flagUpsertSQL,
			f.ID, f.OwnerID, f.OwnerName, f.Name, f.Lat, f.Lng, f.Radius, f.VisualBoundary,
			f.Kind, f.Public, f.Toll, f.Hardened, f.Abandoned, f.Health,
			f.CreatedAt, f.UpdatedAt, f.LastVisited,
		); err != nil {
			return fmt.Errorf("flag batch upsert %d: %w", f.ID, err)
		}
	}
	for _, id := range removed {
		if _, err := tx.Exec(ctx, flagDeleteSQL, id); err != nil {
			return fmt.Errorf("flag batch delete %d: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *FlagRepo) MaxID(ctx context.Context) (int64, error) {
	var max int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM flags`).Scan(&max)
	return max, err
}
