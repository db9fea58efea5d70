// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testFilm(id int64, title string, year int) *models.Film {
	return &models.Film{
		ExternalID:  id,
		Title:       title,
		Year:        year,
		VoteAverage: 7.5,
		VoteCount:   5000,
		Popularity:  20,
		Genres:      []string{"Drama"},
		Runtime:     120,
	}
}

func TestFilmLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	f := testFilm(100, "Twelve Angry Men", 1957)
	f.Keywords = []string{"jury", "courtroom"}
	f.Countries = []string{"US"}
	f.ReleaseDate = time.Date(1957, 4, 10, 0, 0, 0, 0, time.UTC)
	if err := db.CreateFilm(ctx, f); err != nil {
		t.Fatalf("CreateFilm() error: %v", err)
	}

	got, err := db.GetFilm(ctx, 100)
	if err != nil {
		t.Fatalf("GetFilm() error: %v", err)
	}
	if got.Title != f.Title || got.Year != f.Year {
		t.Errorf("GetFilm() = %q (%d), want %q (%d)", got.Title, got.Year, f.Title, f.Year)
	}
	if got.ProcessingStatus != models.StatusPending {
		t.Errorf("status = %q, want pending", got.ProcessingStatus)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "jury" {
		t.Errorf("keywords = %v", got.Keywords)
	}
	if got.ReleaseDate.Year() != 1957 {
		t.Errorf("release date = %v", got.ReleaseDate)
	}

	exists, err := db.FilmExists(ctx, 100)
	if err != nil || !exists {
		t.Errorf("FilmExists() = %v, %v", exists, err)
	}

	if err := db.MarkProcessing(ctx, 100); err != nil {
		t.Fatalf("MarkProcessing() error: %v", err)
	}
	got, _ = db.GetFilm(ctx, 100)
	if got.ProcessingStatus != models.StatusProcessing {
		t.Errorf("status = %q, want processing", got.ProcessingStatus)
	}

	if err := db.MarkCompleted(ctx, 100, "film-100"); err != nil {
		t.Fatalf("MarkCompleted() error: %v", err)
	}
	got, _ = db.GetFilm(ctx, 100)
	if got.ProcessingStatus != models.StatusCompleted || got.VectorID != "film-100" {
		t.Errorf("after complete: status = %q, vector = %q", got.ProcessingStatus, got.VectorID)
	}

	if err := db.MarkFailed(ctx, 100, "index unreachable"); err != nil {
		t.Fatalf("MarkFailed() error: %v", err)
	}
	got, _ = db.GetFilm(ctx, 100)
	if got.ProcessingStatus != models.StatusFailed {
		t.Errorf("status = %q, want failed", got.ProcessingStatus)
	}
	if got.VectorID != "" {
		t.Errorf("vector id survived failure: %q", got.VectorID)
	}
	if got.Attempts != 1 || got.LastError != "index unreachable" {
		t.Errorf("attempts = %d, last error = %q", got.Attempts, got.LastError)
	}
}

func TestGetFilm_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetFilm(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFilm() error = %v, want ErrNotFound", err)
	}
}

func TestCreateFilm_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.CreateFilm(ctx, testFilm(200, "Original Title", 1980)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := db.CreateFilm(ctx, testFilm(200, "Changed Title", 1981)); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	got, err := db.GetFilm(ctx, 200)
	if err != nil {
		t.Fatalf("GetFilm() error: %v", err)
	}
	if got.Title != "Original Title" {
		t.Errorf("re-insert overwrote row: title = %q", got.Title)
	}
}

func TestFindFilmsByTitle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := testFilm(300, "Nosferatu", 1922)
	a.VoteCount = 3000
	b := testFilm(301, "nosferatu", 1979)
	b.VoteCount = 9000
	for _, f := range []*models.Film{a, b, testFilm(302, "Other", 1990)} {
		if err := db.CreateFilm(ctx, f); err != nil {
			t.Fatalf("CreateFilm(%d): %v", f.ExternalID, err)
		}
	}

	got, err := db.FindFilmsByTitle(ctx, "NOSFERATU")
	if err != nil {
		t.Fatalf("FindFilmsByTitle() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (case-insensitive)", len(got))
	}
	if got[0].ExternalID != 301 {
		t.Errorf("first match = %d, want highest vote count first", got[0].ExternalID)
	}
}

func TestListRetryableFailed_RespectsAttemptCap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.CreateFilm(ctx, testFilm(400, "Flaky", 1985)); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateFilm(ctx, testFilm(401, "Hopeless", 1985)); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkFailed(ctx, 400, "transient"); err != nil {
		t.Fatal(err)
	}
	for range models.MaxAttempts {
		if err := db.MarkFailed(ctx, 401, "persistent"); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := db.ListRetryableFailed(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetryableFailed() error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 400 {
		t.Errorf("ids = %v, want [400]", ids)
	}
}

func TestRepairVectorIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.CreateFilm(ctx, testFilm(500, "Orphaned", 1970)); err != nil {
		t.Fatal(err)
	}
	// Force the inconsistent state directly; no public API can produce it.
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE films SET processing_status = 'completed', vector_id = NULL WHERE external_id = 500`); err != nil {
		t.Fatal(err)
	}

	repaired, err := db.RepairVectorIDs(ctx)
	if err != nil {
		t.Fatalf("RepairVectorIDs() error: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}

	got, _ := db.GetFilm(ctx, 500)
	if got.VectorID != "film-500" {
		t.Errorf("vector id = %q, want film-500", got.VectorID)
	}

	// A second pass finds nothing to repair.
	repaired, err = db.RepairVectorIDs(ctx)
	if err != nil || repaired != 0 {
		t.Errorf("second pass = %d, %v, want 0, nil", repaired, err)
	}
}

func TestListStaleProcessing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []int64{600, 601} {
		if err := db.CreateFilm(ctx, testFilm(id, "Claimed", 1970)); err != nil {
			t.Fatal(err)
		}
		if err := db.MarkProcessing(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	// Age one claim past the cutoff; no public API back-dates a row.
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE films SET updated_at = now() - INTERVAL 1 HOUR WHERE external_id = 600`); err != nil {
		t.Fatal(err)
	}

	stale, err := db.ListStaleProcessing(ctx, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ListStaleProcessing() error: %v", err)
	}
	if len(stale) != 1 || stale[0] != 600 {
		t.Errorf("stale = %v, want [600]", stale)
	}
}

func TestQueueLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	added, err := db.EnqueueFilms(ctx, []int64{10, 11, 12}, 0)
	if err != nil {
		t.Fatalf("EnqueueFilms() error: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}

	// Raising priority re-opens without duplicating.
	if _, err := db.EnqueueFilms(ctx, []int64{12}, 50); err != nil {
		t.Fatal(err)
	}

	depth, err := db.QueueDepth(ctx)
	if err != nil || depth != 3 {
		t.Errorf("QueueDepth() = %d, %v, want 3", depth, err)
	}

	entries, err := db.NextQueueEntries(ctx, 10)
	if err != nil {
		t.Fatalf("NextQueueEntries() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].ExternalID != 12 || entries[0].Priority != 50 {
		t.Errorf("first entry = %+v, want id 12 at priority 50", entries[0])
	}

	if err := db.MarkQueueEntry(ctx, 12, models.QueueCompleted); err != nil {
		t.Fatalf("MarkQueueEntry() error: %v", err)
	}
	depth, _ = db.QueueDepth(ctx)
	if depth != 2 {
		t.Errorf("depth after completion = %d, want 2", depth)
	}

	// Completed entries stay until an explicit clear.
	cleared, err := db.ClearQueue(ctx, "completed")
	if err != nil || cleared != 1 {
		t.Errorf("ClearQueue(completed) = %d, %v, want 1", cleared, err)
	}

	cleared, err = db.ClearQueue(ctx, "all")
	if err != nil || cleared != 2 {
		t.Errorf("ClearQueue(all) = %d, %v, want 2", cleared, err)
	}

	if _, err := db.ClearQueue(ctx, "bogus"); err == nil {
		t.Error("ClearQueue(bogus) did not error")
	}
}

func TestEnqueue_NeverLowersPriority(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.EnqueueFilms(ctx, []int64{20}, 80); err != nil {
		t.Fatal(err)
	}
	if _, err := db.EnqueueFilms(ctx, []int64{20}, 5); err != nil {
		t.Fatal(err)
	}

	entries, err := db.NextQueueEntries(ctx, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("NextQueueEntries() = %v, %v", entries, err)
	}
	if entries[0].Priority != 80 {
		t.Errorf("priority = %d, want 80 kept", entries[0].Priority)
	}
}

func TestDailyMetrics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.IncrementDaily(ctx, DailyItemsProcessed, 3); err != nil {
		t.Fatalf("IncrementDaily() error: %v", err)
	}
	if err := db.IncrementDaily(ctx, DailyItemsProcessed, 2); err != nil {
		t.Fatalf("second increment: %v", err)
	}
	if err := db.IncrementDaily(ctx, DailyErrors, 1); err != nil {
		t.Fatalf("errors increment: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	m, err := db.GetDailyMetrics(ctx, today)
	if err != nil {
		t.Fatalf("GetDailyMetrics() error: %v", err)
	}
	if m.ItemsProcessed != 5 || m.Errors != 1 {
		t.Errorf("metrics = %+v", m)
	}

	// Unknown columns are rejected, not interpolated.
	if err := db.IncrementDaily(ctx, DailyColumn("day; DROP TABLE films"), 1); err == nil {
		t.Error("injection-shaped column accepted")
	}

	empty, err := db.GetDailyMetrics(ctx, "1999-01-01")
	if err != nil {
		t.Fatalf("empty day: %v", err)
	}
	if empty.ItemsProcessed != 0 {
		t.Errorf("empty day = %+v, want zero row", empty)
	}
}

func TestDistributions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	films := []*models.Film{
		testFilm(600, "A", 1955),
		testFilm(601, "B", 1975),
		testFilm(602, "C", 1995),
	}
	films[0].Genres = []string{"Drama", "Crime"}
	films[1].Genres = []string{"Drama"}
	films[2].Genres = []string{"Comedy"}
	for _, f := range films {
		if err := db.CreateFilm(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	genres, err := db.GenreDistribution(ctx)
	if err != nil {
		t.Fatalf("GenreDistribution() error: %v", err)
	}
	if genres["Drama"] < 0.66 || genres["Drama"] > 0.67 {
		t.Errorf("Drama share = %v, want 2/3", genres["Drama"])
	}

	eras, err := db.EraDistribution(ctx)
	if err != nil {
		t.Fatalf("EraDistribution() error: %v", err)
	}
	want := map[string]int64{"pre-1970": 1, "1970-1989": 1, "1990-1999": 1}
	for era, n := range want {
		if eras[era] != n {
			t.Errorf("era %s = %d, want %d", era, eras[era], n)
		}
	}
}

func TestGenreDistribution_EmptyCatalog(t *testing.T) {
	db := newTestDB(t)

	genres, err := db.GenreDistribution(context.Background())
	if err != nil {
		t.Fatalf("GenreDistribution() error: %v", err)
	}
	if len(genres) != 0 {
		t.Errorf("genres = %v, want empty", genres)
	}
}

func TestFallbackRecommend(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	popular := testFilm(700, "Popular Drama", 1995)
	popular.Popularity = 90
	old := testFilm(701, "Old Drama", 1950)
	old.Popularity = 50
	long := testFilm(702, "Long Drama", 1995)
	long.Popularity = 70
	long.Runtime = 220
	comedy := testFilm(703, "A Comedy", 1995)
	comedy.Genres = []string{"Comedy"}
	for _, f := range []*models.Film{popular, old, long, comedy} {
		if err := db.CreateFilm(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.FallbackRecommend(ctx, FallbackFilter{
		Genre:      "Drama",
		MinYear:    1960,
		MaxRuntime: 150,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("FallbackRecommend() error: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != 700 {
		t.Errorf("got %d films, first = %+v, want only Popular Drama", len(got), got)
	}

	// Unconstrained: ordered by popularity.
	got, err = db.FallbackRecommend(ctx, FallbackFilter{Limit: 10})
	if err != nil {
		t.Fatalf("unconstrained: %v", err)
	}
	if len(got) != 4 || got[0].ExternalID != 700 {
		t.Errorf("unconstrained order = %v", got)
	}
}

func TestCurationTables(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, action := range []models.CurationAction{models.ActionAccept, models.ActionReject} {
		err := db.AppendCurationLog(ctx, &models.CurationLogEntry{
			ExternalID: int64(800 + i),
			Action:     action,
			Reason:     "test",
			Source:     "admin",
			Score:      70,
		})
		if err != nil {
			t.Fatalf("AppendCurationLog() error: %v", err)
		}
	}

	entries, err := db.RecentCurationLog(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCurationLog() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}

	err = db.InsertRejection(ctx, &models.Rejection{
		ExternalID: 801, Title: "Rejected", Year: 2010, Reason: "quality", Score: 40,
	})
	if err != nil {
		t.Fatalf("InsertRejection() error: %v", err)
	}

	mapping := &models.DuplicateMapping{
		PrimaryID: 800, DuplicateID: 900,
		MatchType: models.MatchExact, Confidence: 1.0,
	}
	if err := db.InsertDuplicateMapping(ctx, mapping); err != nil {
		t.Fatalf("InsertDuplicateMapping() error: %v", err)
	}
	// Re-detection of the same pair is a no-op.
	if err := db.InsertDuplicateMapping(ctx, mapping); err != nil {
		t.Errorf("duplicate mapping re-insert: %v", err)
	}

	qm := &models.QualityMetrics{ExternalID: 800, Score: 72.5, RatingPts: 30}
	if err := db.UpsertQualityMetrics(ctx, qm); err != nil {
		t.Fatalf("UpsertQualityMetrics() error: %v", err)
	}
	qm.Score = 68.0
	if err := db.UpsertQualityMetrics(ctx, qm); err != nil {
		t.Errorf("quality metrics re-upsert: %v", err)
	}

	var score float64
	err = db.conn.QueryRowContext(ctx,
		`SELECT score FROM quality_metrics WHERE external_id = 800`).Scan(&score)
	if err != nil {
		t.Fatalf("read back quality metrics: %v", err)
	}
	if score != 68.0 {
		t.Errorf("score after re-upsert = %v, want 68.0", score)
	}
}
