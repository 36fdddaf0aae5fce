package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store is the sheet registry backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// SheetRecord is one generated sprite sheet.
type SheetRecord struct {
	ID          uuid.UUID
	VideoID     string // empty for sheets composed from a frame directory
	Label       string
	SourcePath  string
	OutputPath  string
	FrameCount  int
	Columns     int
	Rows        int
	SheetWidth  int
	SheetHeight int
	FrameWidth  int
	FrameHeight int
	Metadata    []byte // sidecar JSON
	ObjectKeys  []string
	CreatedAt   time.Time
}

// New connects to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: database url: %v", types.ErrConfiguration, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logger.Debug("registry connected", zap.Int32("max_conns", pool.Config().MaxConns))
	return &Store{pool: pool, logger: logger}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			width INT NOT NULL DEFAULT 0,
			height INT NOT NULL DEFAULT 0,
			duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			fps DOUBLE PRECISION NOT NULL DEFAULT 0,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS spritesheets (
			id UUID PRIMARY KEY,
			video_id TEXT REFERENCES video_metadata(id) ON DELETE SET NULL,
			label TEXT NOT NULL DEFAULT '',
			source_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			frame_count INT NOT NULL,
			columns INT NOT NULL,
			rows INT NOT NULL,
			sheet_width INT NOT NULL,
			sheet_height INT NOT NULL,
			frame_width INT NOT NULL,
			frame_height INT NOT NULL,
			metadata JSONB NOT NULL,
			object_keys TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS spritesheets_video_id_idx ON spritesheets (video_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the probe data.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string, info types.VideoInfo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO video_metadata (id, path, width, height, duration, fps, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			path = EXCLUDED.path, width = EXCLUDED.width, height = EXCLUDED.height,
			duration = EXCLUDED.duration, fps = EXCLUDED.fps, indexed_at = NOW()
	`, videoID, path, info.Width, info.Height, info.Duration, info.FrameRate)
	return err
}

// InsertSheet saves a sheet record, assigning an ID when rec has none.
func (s *Store) InsertSheet(ctx context.Context, rec *SheetRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ObjectKeys == nil {
		rec.ObjectKeys = []string{}
	}
	var videoID *string
	if rec.VideoID != "" {
		videoID = &rec.VideoID
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO spritesheets (id, video_id, label, source_path, output_path, frame_count, columns, rows,
			sheet_width, sheet_height, frame_width, frame_height, metadata, object_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, rec.ID, videoID, rec.Label, rec.SourcePath, rec.OutputPath, rec.FrameCount, rec.Columns, rec.Rows,
		rec.SheetWidth, rec.SheetHeight, rec.FrameWidth, rec.FrameHeight, rec.Metadata, rec.ObjectKeys,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return err
	}

	s.logger.Debug("sheet registered", zap.String("id", rec.ID.String()), zap.String("output", rec.OutputPath))
	return nil
}

const sheetColumns = `id, COALESCE(video_id, ''), label, source_path, output_path, frame_count, columns, rows,
	sheet_width, sheet_height, frame_width, frame_height, metadata, object_keys, created_at`

func scanSheet(row pgx.Row) (SheetRecord, error) {
	var r SheetRecord
	err := row.Scan(&r.ID, &r.VideoID, &r.Label, &r.SourcePath, &r.OutputPath, &r.FrameCount, &r.Columns, &r.Rows,
		&r.SheetWidth, &r.SheetHeight, &r.FrameWidth, &r.FrameHeight, &r.Metadata, &r.ObjectKeys, &r.CreatedAt)
	return r, err
}

// ListSheets returns every registered sheet, newest first.
func (s *Store) ListSheets(ctx context.Context) ([]SheetRecord, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+sheetColumns+" FROM spritesheets ORDER BY created_at DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []SheetRecord
	for rows.Next() {
		r, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, r)
	}
	return sheets, rows.Err()
}

// GetSheet fetches one sheet by ID.
func (s *Store) GetSheet(ctx context.Context, id uuid.UUID) (*SheetRecord, error) {
	r, err := scanSheet(s.pool.QueryRow(ctx, "SELECT "+sheetColumns+" FROM spritesheets WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: sheet %s", types.ErrInputNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LabelSheet renames a sheet.
func (s *Store) LabelSheet(ctx context.Context, id uuid.UUID, label string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE spritesheets SET label = $1 WHERE id = $2", label, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sheet %s", types.ErrInputNotFound, id)
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS spritesheets CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
