package record

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/utils"
)

// PersistError reports trial data that did not reach disk. The trial itself
// is still held by the caller.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("could not save to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// AutosavePath is the per-trial log for one subject and session.
func AutosavePath(dir, subjectID string, session int) string {
	return filepath.Join(dir, fmt.Sprintf("AuditoryMemoryTest_%s_sess%d.csv", subjectID, session))
}

// FinalPath is the end-of-session export.
func FinalPath(dir, subjectID string, session int) string {
	return filepath.Join(dir, fmt.Sprintf("AuditoryMemoryTest_%s_sess%d_final.csv", subjectID, session))
}

// Appender adds one row per answered trial to a CSV log, writing the header
// only when it creates the file.
type Appender struct {
	mu   sync.Mutex
	path string
}

func NewAppender(path string) *Appender {
	return &Appender{path: path}
}

func (a *Appender) Path() string { return a.path }

func (a *Appender) Append(t models.Trial) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := utils.MakeDir(filepath.Dir(a.path)); err != nil {
		return &PersistError{Path: a.path, Err: err}
	}
	header := !utils.FileExists(a.path)

	var buf bytes.Buffer
	if err := writeRows(&buf, header, []models.Trial{t}); err != nil {
		return &PersistError{Path: a.path, Err: err}
	}

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistError{Path: a.path, Err: err}
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return &PersistError{Path: a.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistError{Path: a.path, Err: err}
	}
	return nil
}

// WriteFinal replaces path with a full export of trials.
func WriteFinal(path string, trials []models.Trial) error {
	if err := utils.AtomicWriteFile(path, []byte(ExportCSV(trials)), 0o644); err != nil {
		return &PersistError{Path: path, Err: err}
	}
	return nil
}

// Accuracy counts correct answers among answered trials of block.
func Accuracy(trials []models.Trial, block models.Block) (correct, total int) {
	for i := range trials {
		t := &trials[i]
		if t.Block != block || !t.Answered() {
			continue
		}
		total++
		if t.Correct() {
			correct++
		}
	}
	return correct, total
}
