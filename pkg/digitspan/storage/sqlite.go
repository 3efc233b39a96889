//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "assets/clips.sqlite3"
const errDBClientNil = "db client is nil"

var ErrClipNotFound = errors.New("clip not recorded")

// DBClient keeps a manifest of the speech clips held in the on-disk cache.
// The files remain the source of truth; the manifest only describes them.
type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Clip struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Code       string `gorm:"uniqueIndex:idx_clip_key,priority:1;type:varchar(8)" json:"code"`
	Digit      int    `gorm:"uniqueIndex:idx_clip_key,priority:2" json:"digit"`
	Path       string `json:"path"`
	Provider   string `gorm:"index:idx_provider" json:"provider"`
	SizeBytes  int64  `json:"size_bytes"`
	SHA256     string `gorm:"type:char(64)" json:"sha256"`
	DurationMs int    `json:"duration_ms"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Clip{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterClip records (or refreshes) the manifest row for code/digit. Two
// writers racing on the same key both succeed; the later one wins.
func (c *DBClient) RegisterClip(info models.ClipInfo) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	var clip Clip
	err := c.DB.Where("code = ? AND digit = ?", info.Code, info.Digit).First(&clip).Error
	if err == nil {
		return c.updateClip(&clip, info)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("querying existing clip: %w", err)
	}

	clip = fromInfo(info)
	err = c.DB.Create(&clip).Error
	if err != nil {
		if isUniqueViolation(err) {
			if fetchErr := c.DB.Where("code = ? AND digit = ?", info.Code, info.Digit).First(&clip).Error; fetchErr != nil {
				return fmt.Errorf("fetching clip after constraint violation: %w", fetchErr)
			}
			return c.updateClip(&clip, info)
		}
		return fmt.Errorf("creating clip: %w", err)
	}
	return nil
}

func (c *DBClient) updateClip(clip *Clip, info models.ClipInfo) error {
	err := c.DB.Model(clip).Updates(map[string]any{
		"path":        info.Path,
		"provider":    info.Provider,
		"size_bytes":  info.SizeBytes,
		"sha256":      info.SHA256,
		"duration_ms": info.DurationMs,
	}).Error
	if err != nil {
		return fmt.Errorf("updating clip %s_%d: %w", info.Code, info.Digit, err)
	}
	return nil
}

func (c *DBClient) GetClip(code string, digit int) (*models.ClipInfo, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var clip Clip
	err := c.DB.Where("code = ? AND digit = ?", code, digit).First(&clip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying clip: %w", err)
	}
	info := clip.toInfo()
	return &info, nil
}

// ListClips returns all rows, optionally restricted to one provider code.
func (c *DBClient) ListClips(code string) ([]models.ClipInfo, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Order("code").Order("digit")
	if code != "" {
		q = q.Where("code = ?", code)
	}
	var rows []Clip
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing clips: %w", err)
	}
	out := make([]models.ClipInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toInfo())
	}
	return out, nil
}

func (c *DBClient) DeleteClip(code string, digit int) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	res := c.DB.Where("code = ? AND digit = ?", code, digit).Delete(&Clip{})
	if res.Error != nil {
		return fmt.Errorf("deleting clip: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClipNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}

func fromInfo(info models.ClipInfo) Clip {
	return Clip{
		Code:       info.Code,
		Digit:      info.Digit,
		Path:       info.Path,
		Provider:   info.Provider,
		SizeBytes:  info.SizeBytes,
		SHA256:     info.SHA256,
		DurationMs: info.DurationMs,
	}
}

func (c Clip) toInfo() models.ClipInfo {
	return models.ClipInfo{
		Code:       c.Code,
		Digit:      c.Digit,
		Path:       c.Path,
		Provider:   c.Provider,
		SizeBytes:  c.SizeBytes,
		SHA256:     c.SHA256,
		DurationMs: c.DurationMs,
		CreatedAt:  c.CreatedAt,
	}
}
