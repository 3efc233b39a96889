// Package cache stores synthesized digit clips on disk as
// {code}_{digit}.mp3 so each (language, digit) pair is synthesized once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/tts"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/utils"
)

const DefaultDir = "assets"

// Index records what the cache holds. storage.DBClient satisfies it.
type Index interface {
	RegisterClip(info models.ClipInfo) error
}

type Store struct {
	dir      string
	provider tts.Provider
	index    Index
	log      logger.Interface
}

type Option func(*Store)

func WithIndex(idx Index) Option {
	return func(s *Store) { s.index = idx }
}

func WithLogger(log logger.Interface) Option {
	return func(s *Store) { s.log = log }
}

func New(dir string, provider tts.Provider, opts ...Option) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	s := &Store{dir: dir, provider: provider}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.GetLogger().With("[cache]")
	}
	return s
}

func (s *Store) Dir() string { return s.dir }

// Path returns where the clip for code/digit lives.
func (s *Store) Path(code string, digit int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%d.mp3", code, digit))
}

// GetOrCreate returns the clip for code/digit, synthesizing and storing it on
// a miss. created reports whether the provider was called. A clip that could
// not be written is still returned; the failure is only logged.
func (s *Store) GetOrCreate(ctx context.Context, code string, digit int) (data []byte, created bool, err error) {
	path := s.Path(code, digit)
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return data, false, nil
	}

	if s.provider == nil {
		return nil, false, fmt.Errorf("no clip at %s and no provider configured", path)
	}

	s.log.Infof("Generating %s with lang=%s via %s", path, code, s.provider.Name())
	data, err = s.provider.Synthesize(ctx, strconv.Itoa(digit), code)
	if err != nil {
		return nil, false, fmt.Errorf("synthesizing %s_%d: %w", code, digit, err)
	}

	if err := utils.AtomicWriteFile(path, data, 0o644); err != nil {
		s.log.Warnf("could not cache %s: %v", path, err)
		return data, true, nil
	}
	s.register(code, digit, path, data)
	return data, true, nil
}

func (s *Store) register(code string, digit int, path string, data []byte) {
	if s.index == nil {
		return
	}
	info := models.ClipInfo{
		Code:      code,
		Digit:     digit,
		Path:      path,
		Provider:  s.provider.Name(),
		SizeBytes: int64(len(data)),
		SHA256:    Checksum(data),
	}
	if buf, err := audio.DecodeClip(data, audio.DefaultSampleRate); err == nil {
		info.DurationMs = buf.DurationMs()
	}
	if err := s.index.RegisterClip(info); err != nil {
		s.log.Warnf("manifest update for %s failed: %v", path, err)
	}
}

// Checksum is the hex SHA-256 recorded for a clip.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Remove deletes the clip for code/digit so the next request synthesizes it
// again. A clip that is not cached is not an error.
func (s *Store) Remove(code string, digit int) error {
	if err := os.Remove(s.Path(code, digit)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing clip: %w", err)
	}
	return nil
}

// Warm makes sure every digit is cached for code. It returns the digits that
// failed alongside the first error.
func (s *Store) Warm(ctx context.Context, code string, digits []int) ([]int, error) {
	var failed []int
	var first error
	for _, d := range digits {
		if _, _, err := s.GetOrCreate(ctx, code, d); err != nil {
			failed = append(failed, d)
			if first == nil {
				first = err
			}
		}
	}
	return failed, first
}

// Entry is a clip found on disk.
type Entry struct {
	Code      string
	Digit     int
	Path      string
	SizeBytes int64
}

// Entries scans the cache directory. A missing directory is an empty cache.
func (s *Store) Entries() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.dir, err)
	}

	var out []Entry
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".mp3") || strings.HasPrefix(name, ".") {
			continue
		}
		code, num, ok := strings.Cut(strings.TrimSuffix(name, ".mp3"), "_")
		if !ok {
			continue
		}
		digit, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		var size int64
		if info, err := f.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, Entry{Code: code, Digit: digit, Path: filepath.Join(s.dir, name), SizeBytes: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Digit < out[j].Digit
	})
	return out, nil
}
