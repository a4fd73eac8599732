package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

type PlayerRow struct {
	ID         int64
	Name       string
	SecretHash string
	StartLat   float64
	StartLng   float64
	Lat        float64
	Lng        float64
	Gold       float64
	Online     bool
	CreatedAt  time.Time
	LastSeen   *time.Time
}

type PlayerRepo struct {
	db *DB
}

func NewPlayerRepo(db *DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

func (r *PlayerRepo) Load(ctx context.Context, id int64) (*PlayerRow, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		`SELECT id, name, secret_hash, start_lat, start_lng, lat, lng,
		        gold, online, created_at, last_seen
		 FROM players WHERE id = $1`, id,
	))
}

func (r *PlayerRepo) LoadByName(ctx context.Context, name string) (*PlayerRow, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		`SELECT id, name, secret_hash, start_lat, start_lng, lat, lng,
		        gold, online, created_at, last_seen
		 FROM players WHERE name = $1`, name,
	))
}

func (r *PlayerRepo) scanOne(row pgx.Row) (*PlayerRow, error) {
	p := &PlayerRow{}
	err := row.Scan(
		&p.ID, &p.Name, &p.SecretHash, &p.StartLat, &p.StartLng, &p.Lat, &p.Lng,
		&p.Gold, &p.Online, &p.CreatedAt, &p.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create registers a new player at the given start position. The raw
// secret is hashed before it reaches the database.
func (r *PlayerRepo) Create(ctx context.Context, name, rawSecret string, startLat, startLng, gold float64) (*PlayerRow, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	row := &PlayerRow{
		Name:       name,
		SecretHash: string(hash),
		StartLat:   startLat,
		StartLng:   startLng,
		Lat:        startLat,
		Lng:        startLng,
		Gold:       gold,
		CreatedAt:  now,
		LastSeen:   &now,
	}
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO players (name, secret_hash, start_lat, start_lng, lat, lng, gold, last_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		row.Name, row.SecretHash, row.StartLat, row.StartLng, row.Lat, row.Lng, row.Gold, row.LastSeen,
	).Scan(&row.ID)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *PlayerRepo) ValidateSecret(hash string, rawSecret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawSecret)) == nil
}

func (r *PlayerRepo) UpdatePosition(ctx context.Context, id int64, lat, lng float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE players SET lat = $2, lng = $3, last_seen = NOW() WHERE id = $1`,
		id, lat, lng,
	)
	return err
}

// AdjustGold applies a signed delta and returns the resulting balance.
// Gold is written through synchronously; positions are batch-flushed.
func (r *PlayerRepo) AdjustGold(ctx context.Context, id int64, delta float64) (float64, error) {
	var balance float64
	err := r.db.Pool.QueryRow(ctx,
		`UPDATE players SET gold = gold + $2 WHERE id = $1 RETURNING gold`,
		id, delta,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.New("player not found")
	}
	return balance, err
}

func (r *PlayerRepo) SetOnline(ctx context.Context, id int64, online bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE players SET online = $2 WHERE id = $1`,
		id, online,
	)
	return err
}

func (r *PlayerRepo) MaxID(ctx context.Context) (int64, error) {
	var max int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM players`).Scan(&max)
	return max, err
}
