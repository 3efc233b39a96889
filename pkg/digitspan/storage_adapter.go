package digitspan

import (
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/cache"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/storage"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

// NewSQLiteIndex opens the clip manifest at dbPath.
func NewSQLiteIndex(dbPath string) (ClipIndex, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// entriesToInfo describes clips found by scanning the cache directory, for
// when no manifest is configured.
func entriesToInfo(entries []cache.Entry) []models.ClipInfo {
	out := make([]models.ClipInfo, len(entries))
	for i, e := range entries {
		out[i] = models.ClipInfo{
			Code:      e.Code,
			Digit:     e.Digit,
			Path:      e.Path,
			SizeBytes: e.SizeBytes,
		}
	}
	return out
}
