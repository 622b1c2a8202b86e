package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
)

// NewStore returns an in-memory store that is closed when the test ends.
func NewStore(t testing.TB) *storage.LocalStorage {
	t.Helper()

	store, err := storage.NewLocalStorage("", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open local storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedFile stores a pending file owned by ownerID and returns it.
func SeedFile(t testing.TB, store storage.FileStore, ownerID string) *models.FileRecord {
	t.Helper()

	now := time.Now().UTC()
	rec := &models.FileRecord{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Vehicle: models.Vehicle{Make: "Volkswagen", Model: "Golf", ECUType: "EDC17C46"},
		Status:  models.StatusPending,
		StatusHistory: []models.StatusEntry{
			{Status: models.StatusPending, Timestamp: now},
		},
		Options:      map[string]int{"stage1": 50},
		TotalCredits: 50,
		FileInfo: models.FileInfo{
			OriginalName:     "golf.bin",
			OriginalFilePath: "ecu/" + ownerID + "/golf.bin",
			Size:             2048,
		},
		ScanStatus: models.ScanPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateFile(context.Background(), rec); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	return rec
}
