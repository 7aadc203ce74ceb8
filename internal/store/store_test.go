package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/hamgrid/groundscope/internal/view"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s := New(filepath.Join(t.TempDir(), "console.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	return s
}

func TestViewStateRoundTrip(t *testing.T) {
	s := testStore(t)

	if _, found, err := s.LoadViewState(); err != nil || found {
		t.Fatalf("expected no state in a fresh store, found=%v err=%v", found, err)
	}

	if err := s.SaveViewState(view.State{Scale: 2.5, Offset: -300}); err != nil {
		t.Fatalf("saving view state: %v", err)
	}

	// The singleton row is replaced, not appended.
	if err := s.SaveViewState(view.State{Scale: 4, Offset: -1200}); err != nil {
		t.Fatalf("saving view state again: %v", err)
	}

	state, found, err := s.LoadViewState()
	if err != nil {
		t.Fatalf("loading view state: %v", err)
	}
	if !found {
		t.Fatal("expected persisted state")
	}
	if state.Scale != 4 || state.Offset != -1200 {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestBookmarks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	issID, err := s.AddBookmark(ctx, "ISS", 145.8e6)
	if err != nil {
		t.Fatalf("adding bookmark: %v", err)
	}
	if _, err := s.AddBookmark(ctx, "APRS", 144.39e6); err != nil {
		t.Fatalf("adding bookmark: %v", err)
	}

	bookmarks, err := s.Bookmarks(ctx)
	if err != nil {
		t.Fatalf("listing bookmarks: %v", err)
	}
	if len(bookmarks) != 2 {
		t.Fatalf("expected 2 bookmarks, got %d", len(bookmarks))
	}
	if bookmarks[0].Label != "APRS" || bookmarks[1].Label != "ISS" {
		t.Errorf("expected frequency order, got %+v", bookmarks)
	}

	if err := s.DeleteBookmark(ctx, issID); err != nil {
		t.Fatalf("deleting bookmark: %v", err)
	}

	bookmarks, err = s.Bookmarks(ctx)
	if err != nil {
		t.Fatalf("listing bookmarks: %v", err)
	}
	if len(bookmarks) != 1 || bookmarks[0].Label != "APRS" {
		t.Errorf("expected only APRS left, got %+v", bookmarks)
	}
}

func TestSnapshotRecords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := SnapshotRecord{
		ID:              uuid.NewString(),
		Filename:        "ISS_145.80MHz_test.png",
		Target:          "ISS",
		CenterFrequency: 145.8e6,
		Width:           1200,
		Height:          900,
	}
	if err := s.RecordSnapshot(ctx, rec); err != nil {
		t.Fatalf("recording snapshot: %v", err)
	}

	records, err := s.Snapshots(ctx, 10)
	if err != nil {
		t.Fatalf("listing snapshots: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.ID != rec.ID || got.Filename != rec.Filename || got.Target != rec.Target {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.CenterFrequency != rec.CenterFrequency || got.Width != 1200 || got.Height != 900 {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at populated")
	}
}
