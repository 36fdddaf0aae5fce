package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("spritesheet_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr, nil)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	// --- Test Scenarios ---

	info := types.VideoInfo{Width: 640, Height: 480, Duration: 3.5, FrameRate: 30}
	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/tmp/walk.mp4", info); err != nil {
		t.Fatalf("EnsureVideoMetadata failed: %v", err)
	}
	// Re-registering is idempotent.
	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/tmp/walk.mp4", info); err != nil {
		t.Fatalf("EnsureVideoMetadata (repeat) failed: %v", err)
	}

	rec := &SheetRecord{
		VideoID:     "vid_123",
		SourcePath:  "/tmp/walk.mp4",
		OutputPath:  "/tmp/walk_spritesheet.png",
		FrameCount:  7,
		Columns:     3,
		Rows:        3,
		SheetWidth:  960,
		SheetHeight: 720,
		FrameWidth:  320,
		FrameHeight: 240,
		Metadata:    []byte(`{"frames":[],"meta":{"totalFrames":7}}`),
		ObjectKeys:  []string{"sheets/x/walk_spritesheet.png"},
	}
	if err := s.InsertSheet(ctx, rec); err != nil {
		t.Fatalf("InsertSheet failed: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Fatal("Expected InsertSheet to assign an ID")
	}

	// A sheet composed from a frame directory has no video.
	loose := &SheetRecord{SourcePath: "frames/", OutputPath: "frames_spritesheet.png", FrameCount: 1,
		Columns: 1, Rows: 1, SheetWidth: 8, SheetHeight: 8, FrameWidth: 8, FrameHeight: 8, Metadata: []byte(`{}`)}
	if err := s.InsertSheet(ctx, loose); err != nil {
		t.Fatalf("InsertSheet (no video) failed: %v", err)
	}

	if err := s.LabelSheet(ctx, rec.ID, "hero walk"); err != nil {
		t.Fatalf("LabelSheet failed: %v", err)
	}

	got, err := s.GetSheet(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSheet failed: %v", err)
	}
	if got.Label != "hero walk" || got.VideoID != "vid_123" || got.FrameCount != 7 {
		t.Errorf("Unexpected sheet: %+v", got)
	}
	if len(got.ObjectKeys) != 1 || got.ObjectKeys[0] != rec.ObjectKeys[0] {
		t.Errorf("Expected object keys %v, got %v", rec.ObjectKeys, got.ObjectKeys)
	}

	sheets, err := s.ListSheets(ctx)
	if err != nil {
		t.Fatalf("ListSheets failed: %v", err)
	}
	if len(sheets) != 2 {
		t.Errorf("Expected 2 sheets, got %d", len(sheets))
	}

	if _, err := s.GetSheet(ctx, uuid.New()); !errors.Is(err, types.ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}
	if err := s.LabelSheet(ctx, uuid.New(), "x"); !errors.Is(err, types.ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListSheets(ctx); err == nil {
		t.Error("Expected ListSheets to fail after Reset dropped the tables")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
