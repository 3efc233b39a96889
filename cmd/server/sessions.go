package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/record"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/session"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/utils"
)

var errSessionNotFound = errors.New("session not found")

// webSession is a session driven by a browser: the client plays the
// stimuli and posts answers, the server owns the schedule and the files.
// Requests against one session are serialized by mu.
type webSession struct {
	mu       sync.Mutex
	id       string
	cfg      settings.Settings
	progress *session.Progress
	results  []models.Trial
	appender *record.Appender
	saveErrs int
	created  time.Time
}

func newWebSession(cfg settings.Settings, practice, main []models.Trial) *webSession {
	ws := &webSession{
		id:       utils.NewSessionID(),
		cfg:      cfg,
		progress: session.NewProgress(practice, main),
		appender: record.NewAppender(record.AutosavePath(cfg.Storage.OutputDir, cfg.Subject.ID, cfg.Subject.Session)),
		created:  time.Now(),
	}
	// A fresh progress is always in setup, so Start cannot fail.
	_ = ws.progress.Start()
	return ws
}

// current returns the trial awaiting an answer, or nil.
func (ws *webSession) current() *models.Trial {
	return ws.progress.Current()
}

func (ws *webSession) begin() error {
	return ws.progress.BeginMain()
}

// respond answers the current trial, autosaves it and advances. A save
// failure is returned alongside the answered trial; the answer is kept.
func (ws *webSession) respond(saidYes bool, rt time.Duration) (*models.Trial, error) {
	t := ws.current()
	if t == nil {
		return nil, fmt.Errorf("respond: %w (%s)", session.ErrWrongStatus, ws.progress.Status())
	}
	if err := t.Answer(saidYes, rt); err != nil {
		return nil, err
	}
	ws.results = append(ws.results, *t)
	answered := *t

	saveErr := ws.appender.Append(answered)
	if saveErr != nil {
		ws.saveErrs++
	}

	ws.progress.Advance()
	return &answered, saveErr
}

func (ws *webSession) finish() (SummaryResponse, error) {
	correct, total := record.Accuracy(ws.results, models.BlockMain)
	sum := SummaryResponse{Correct: correct, Total: total, SaveFailures: ws.saveErrs}
	if total > 0 {
		sum.Accuracy = float64(correct) / float64(total) * 100
	}
	path := record.FinalPath(ws.cfg.Storage.OutputDir, ws.cfg.Subject.ID, ws.cfg.Subject.Session)
	if err := record.WriteFinal(path, ws.results); err != nil {
		return sum, err
	}
	sum.FinalPath = path
	return sum, nil
}

// sessionStore holds the live sessions of this process.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*webSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*webSession)}
}

func (st *sessionStore) add(ws *webSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[ws.id] = ws
}

func (st *sessionStore) get(id string) (*webSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ws, ok := st.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return ws, nil
}

func (st *sessionStore) remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
