package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/commentq/internal/model"
)

// mockStore はテスト用のqueue.Storeモック。
type mockStore struct {
	purged     int64
	purgeErr   error
	lastCutoff time.Time
}

func (m *mockStore) Create(_ context.Context, _ *model.PendingComment) (string, error) {
	return "", nil
}

func (m *mockStore) Load(_ context.Context, _ string) (*model.PendingComment, error) {
	return nil, nil
}

func (m *mockStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (m *mockStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.lastCutoff = cutoff
	if m.purgeErr != nil {
		return 0, m.purgeErr
	}
	return m.purged, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupJob_Run(t *testing.T) {
	store := &mockStore{purged: 3}
	job := NewCleanupJob(store, testLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// デフォルト保持日数90日前がcutoffになる
	want := time.Now().UTC().AddDate(0, 0, -90)
	diff := store.lastCutoff.Sub(want)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want ~%v", store.lastCutoff, want)
	}
}

func TestCleanupJob_Run_CustomRetention(t *testing.T) {
	store := &mockStore{}
	job := NewCleanupJob(store, testLogger())
	job.RetentionDays = 7

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := time.Now().UTC().AddDate(0, 0, -7)
	diff := store.lastCutoff.Sub(want)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want ~%v", store.lastCutoff, want)
	}
}

func TestCleanupJob_Run_StoreError(t *testing.T) {
	store := &mockStore{purgeErr: errors.New("disk error")}
	job := NewCleanupJob(store, testLogger())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("Run should propagate store errors")
	}
}

// TestCleanupJob_Run_NothingToDelete は削除対象ゼロでもエラーに
// ならないことをテストする。
func TestCleanupJob_Run_NothingToDelete(t *testing.T) {
	store := &mockStore{purged: 0}
	job := NewCleanupJob(store, testLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Run should succeed with nothing to delete: %v", err)
	}
}
