package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"morpho/internal/migrate"
)

// newTestStore opens an in-memory sqlite database and applies the
// migrations. A single connection keeps the in-memory database alive
// for the whole test.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	if err := migrate.Up(database, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return New(database)
}

func strPtr(s string) *string { return &s }

func TestConversionJobLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id := uuid.New()
	job, err := st.CreateConversionJob(ctx, id, CreateJobSpec{
		SourceFormat:     "docx",
		TargetFormat:     "pdf",
		OriginalFilename: "report.docx",
		ArtifactPath:     "/tmp/uploads/report.docx",
		SizeBytes:        2048,
		Metadata:         map[string]any{"quality": "high"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != "pending" {
		t.Fatalf("expected pending, got %q", job.Status)
	}
	if job.DownloadUrl.Valid {
		t.Fatalf("new job should have no download url")
	}
	if !job.Metadata.Valid {
		t.Fatalf("metadata should round-trip")
	}

	got, err := st.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id || got.OriginalFilename != "report.docx" {
		t.Fatalf("fetched wrong row: %+v", got)
	}

	// Partial merge: only status changes, filename survives.
	updated, err := st.UpdateJob(ctx, id, UpdateJobParams{Status: strPtr("processing")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != "processing" {
		t.Fatalf("expected processing, got %q", updated.Status)
	}
	if updated.OriginalFilename != "report.docx" {
		t.Fatalf("filename clobbered by partial update")
	}

	now := time.Now().UTC()
	done, err := st.UpdateJob(ctx, id, UpdateJobParams{
		Status:      strPtr("completed"),
		DownloadURL: strPtr("/v1/convert/" + id.String() + "/download"),
		CompletedAt: &now,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.DownloadUrl.Valid || !done.CompletedAt.Valid {
		t.Fatalf("completion fields not set: %+v", done)
	}

	existed, err := st.DeleteJob(ctx, id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !existed {
		t.Fatalf("expected existed=true on first delete")
	}

	// Idempotent: second delete reports absence without error.
	existed, err = st.DeleteJob(ctx, id)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if existed {
		t.Fatalf("expected existed=false on second delete")
	}

	if _, err := st.GetJob(ctx, id); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after delete, got %v", err)
	}
}

func TestUpdateJobTargetsRequestedRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
		SourceFormat:     "docx",
		TargetFormat:     "pdf",
		OriginalFilename: "a.docx",
		ArtifactPath:     "/tmp/a.docx",
		SizeBytes:        1,
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
		SourceFormat:     "docx",
		TargetFormat:     "pdf",
		OriginalFilename: "b.docx",
		ArtifactPath:     "/tmp/b.docx",
		SizeBytes:        1,
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	now := time.Now().UTC()
	done, err := st.UpdateJob(ctx, second.ID, UpdateJobParams{
		Status:      strPtr("completed"),
		DownloadURL: strPtr("/v1/convert/" + second.ID.String() + "/download"),
		CompletedAt: &now,
	})
	if err != nil {
		t.Fatalf("update existing row: %v", err)
	}
	if done.ID != second.ID || done.Status != "completed" {
		t.Fatalf("update hit the wrong row: %+v", done)
	}

	// The sibling row must be untouched.
	other, err := st.GetJob(ctx, first.ID)
	if err != nil {
		t.Fatalf("get sibling: %v", err)
	}
	if other.Status != "pending" || other.DownloadUrl.Valid {
		t.Fatalf("sibling row modified: %+v", other)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	batchID := uuid.NewString()
	job, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
		SourceFormat:     "png",
		TargetFormat:     "webp",
		OriginalFilename: "img.png",
		ArtifactPath:     "/tmp/img.png",
		SizeBytes:        42,
		Metadata:         map[string]any{"quality": "high", "batchId": batchID, "batchSize": 2},
	})
	if err != nil {
		t.Fatalf("create with metadata: %v", err)
	}

	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Metadata.Valid {
		t.Fatalf("metadata lost on read")
	}
	var meta map[string]any
	if err := json.Unmarshal(got.Metadata.RawMessage, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta["quality"] != "high" || meta["batchId"] != batchID {
		t.Fatalf("metadata values corrupted: %v", meta)
	}
}

func TestUpdateJobMissingRow(t *testing.T) {
	st := newTestStore(t)

	_, err := st.UpdateJob(context.Background(), uuid.New(), UpdateJobParams{Status: strPtr("completed")})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListJobsByBatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	batchID := uuid.NewString()
	for i := 0; i < 3; i++ {
		_, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
			SourceFormat:     "png",
			TargetFormat:     "webp",
			OriginalFilename: "img.png",
			ArtifactPath:     "/tmp/img.png",
			SizeBytes:        100,
			Metadata:         map[string]any{"batchId": batchID, "batchSize": 3},
		})
		if err != nil {
			t.Fatalf("create member %d: %v", i, err)
		}
	}
	// A job outside the batch must not leak in.
	if _, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
		SourceFormat:     "png",
		TargetFormat:     "webp",
		OriginalFilename: "other.png",
		ArtifactPath:     "/tmp/other.png",
		SizeBytes:        100,
	}); err != nil {
		t.Fatalf("create stray: %v", err)
	}

	parsed, err := uuid.Parse(batchID)
	if err != nil {
		t.Fatalf("parse batch id: %v", err)
	}
	members, err := st.ListJobsByBatch(ctx, parsed)
	if err != nil {
		t.Fatalf("list by batch: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}

	// Unknown batch reads as empty, not an error.
	empty, err := st.ListJobsByBatch(ctx, uuid.New())
	if err != nil {
		t.Fatalf("list unknown batch: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty batch, got %d rows", len(empty))
	}
}

func TestListJobsFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, keyA, err := st.CreateRandomAPIKey(ctx, "tenant-a", false, nil, strPtr("acme"))
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
			SourceFormat:     "md",
			TargetFormat:     "html",
			OriginalFilename: "note.md",
			ArtifactPath:     "/tmp/note.md",
			SizeBytes:        10,
			ApiKeyID:         &keyA.ID,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	anon, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
		SourceFormat:     "md",
		TargetFormat:     "html",
		OriginalFilename: "anon.md",
		ArtifactPath:     "/tmp/anon.md",
		SizeBytes:        10,
	})
	if err != nil {
		t.Fatalf("create anon: %v", err)
	}
	if _, err := st.UpdateJob(ctx, anon.ID, UpdateJobParams{Status: strPtr("failed")}); err != nil {
		t.Fatalf("fail anon: %v", err)
	}

	byKey, err := st.ListJobs(ctx, JobListFilter{ApiKeyID: &keyA.ID, Limit: 50})
	if err != nil {
		t.Fatalf("list by key: %v", err)
	}
	if len(byKey) != 2 {
		t.Fatalf("expected 2 jobs for key, got %d", len(byKey))
	}

	failed, err := st.ListJobs(ctx, JobListFilter{Status: "failed", Limit: 50})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != anon.ID {
		t.Fatalf("status filter wrong: %+v", failed)
	}

	counts, err := st.JobStatusCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["pending"] != 2 || counts["failed"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestDeleteExpiredJobsByStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old, err := st.CreateConversionJob(ctx, uuid.New(), CreateJobSpec{
		SourceFormat:     "csv",
		TargetFormat:     "json",
		OriginalFilename: "old.csv",
		ArtifactPath:     "/tmp/old.csv",
		SizeBytes:        5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.UpdateJob(ctx, old.ID, UpdateJobParams{Status: strPtr("completed")}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Cutoff in the future sweeps the row; its artifact path comes back.
	paths, err := st.DeleteExpiredJobsByStatus(ctx, "completed", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/tmp/old.csv" {
		t.Fatalf("unexpected paths: %v", paths)
	}

	// Cutoff in the past sweeps nothing.
	paths, err = st.DeleteExpiredJobsByStatus(ctx, "completed", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected no rows, got %v", paths)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	raw, created, err := st.CreateRandomAPIKey(ctx, "ci", false, intPtr(120), strPtr("acme"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if raw[:7] != "morpho_" {
		t.Fatalf("raw key missing prefix: %q", raw)
	}
	if created.KeyHash == raw {
		t.Fatalf("raw key stored unhashed")
	}

	got, err := st.GetAPIKeyByRawKey(ctx, raw)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != created.ID || !got.RateLimitPerMinute.Valid || got.RateLimitPerMinute.Int32 != 120 {
		t.Fatalf("unexpected key: %+v", got)
	}
	if !got.Tenant.Valid || got.Tenant.String != "acme" {
		t.Fatalf("tenant not stored: %+v", got)
	}

	if _, err := st.RevokeAPIKey(ctx, created.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Revoked keys no longer authenticate.
	if _, err := st.GetAPIKeyByRawKey(ctx, raw); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after revoke, got %v", err)
	}

	// Revoking again reports sql.ErrNoRows.
	if _, err := st.RevokeAPIKey(ctx, created.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on double revoke, got %v", err)
	}

	active, err := st.ListAPIKeys(ctx, false, 50, 0)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("revoked key listed as active")
	}
	all, err := st.ListAPIKeys(ctx, true, 50, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 key including revoked, got %d", len(all))
	}
}

func TestEnsureAdminAPIKeyIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.EnsureAdminAPIKey(ctx, "morpho_bootstrap", "initial-admin")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !first.IsAdmin {
		t.Fatalf("bootstrap key should be admin")
	}

	second, err := st.EnsureAdminAPIKey(ctx, "morpho_bootstrap", "initial-admin")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("ensure created a duplicate key")
	}
}

func TestAPIKeyUsageCounters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, key, err := st.CreateRandomAPIKey(ctx, "metered", false, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := st.RecordAPIKeyUsage(ctx, key.ID); err != nil {
			t.Fatalf("record usage %d: %v", i, err)
		}
	}

	keys, err := st.ListAPIKeys(ctx, true, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].RequestCount != 3 {
		t.Fatalf("expected request count 3, got %+v", keys)
	}

	usage, err := st.ListDailyUsageSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if len(usage) != 1 || usage[0].Requests != 3 {
		t.Fatalf("expected one usage row with 3 requests, got %+v", usage)
	}
}

func TestVisitorStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	if err := st.TouchVisitor(ctx, a); err != nil {
		t.Fatalf("touch a: %v", err)
	}
	if err := st.TouchVisitor(ctx, a); err != nil {
		t.Fatalf("touch a again: %v", err)
	}
	if err := st.TouchVisitor(ctx, b); err != nil {
		t.Fatalf("touch b: %v", err)
	}

	total, active, err := st.VisitorStats(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 visitors, got %d", total)
	}
	if active != 2 {
		t.Fatalf("expected 2 active visitors, got %d", active)
	}

	_, none, err := st.VisitorStats(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("stats future: %v", err)
	}
	if none != 0 {
		t.Fatalf("expected 0 active in the future, got %d", none)
	}
}

func intPtr(n int) *int { return &n }
