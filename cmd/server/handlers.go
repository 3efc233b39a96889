package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/record"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/session"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service  digitspan.Service
	config   *ServerConfig
	log      digitspan.Logger
	sessions *sessionStore
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Settings       settings.Settings
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service digitspan.Service, config *ServerConfig) *Server {
	return &Server{
		service:  service,
		config:   config,
		log:      logger.GetLogger(),
		sessions: newSessionStore(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(v); err != nil {
		s.log.Warnf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "AuditoryMemoryTest API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":         "GET /health",
			"languages":      "GET /api/languages",
			"generateTrials": "POST /api/trials/generate",
			"trialAudio":     "POST /api/audio/trial",
			"digitAudio":     "GET /api/audio/digit?digit={0-9}&lang={name}",
			"calibration":    "GET /api/audio/calibration?snr={db}&duration={sec}",
			"demo":           "GET /api/audio/demo?snr={db}&lang={name}",
			"exportCSV":      "POST /api/export/csv",
			"clips":          "GET /api/clips",
			"startSession":   "POST /api/sessions",
			"getSession":     "GET /api/sessions/{id}",
			"beginMain":      "POST /api/sessions/{id}/begin",
			"respond":        "POST /api/sessions/{id}/respond",
			"finish":         "POST /api/sessions/{id}/finish",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"sessions": s.sessions.count(),
	})
}

// handleLanguages handles GET /api/languages
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0, len(synth.Languages()))
	for _, l := range synth.Languages() {
		out = append(out, map[string]string{"name": l, "code": synth.LanguageCode(l)})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"languages": out,
		"default":   s.config.Settings.Stimuli.Language,
	})
}

// handleGenerateTrials handles POST /api/trials/generate
func (s *Server) handleGenerateTrials(w http.ResponseWriter, r *http.Request) {
	var req GenerateTrialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	practice, mainTrials, rep, err := s.service.GenerateTrials(req.Design())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, GenerateTrialsResponse{
		Practice:      practice,
		Main:          mainTrials,
		Conditions:    rep.Conditions,
		FallbackLoad:  rep.FallbackLoad,
		ForcedMatches: rep.ForcedMatches,
	})
}

// handleTrialAudio handles POST /api/audio/trial
func (s *Server) handleTrialAudio(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req TrialAudioRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Language == "" {
		req.Language = s.config.Settings.Stimuli.Language
	}

	art, err := s.service.TrialAudio(ctx, digitspan.TrialAudioRequest{
		Digits:       req.Digits,
		SNR:          req.SNR,
		ISIMs:        req.ISIMs,
		RetentionMs:  req.RetentionMs,
		NoiseOnsetMs: req.NoiseOnsetMs,
		Language:     req.Language,
	})
	if err != nil {
		s.log.Errorf("Failed to render trial: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to render trial: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, newAudioResponse(art))
}

// handleDigitAudio handles GET /api/audio/digit
func (s *Server) handleDigitAudio(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	digit, err := strconv.Atoi(r.URL.Query().Get("digit"))
	if err != nil || digit < 0 || digit > 9 {
		s.respondError(w, http.StatusBadRequest, "digit must be 0-9")
		return
	}
	lang := s.language(r)

	art, err := s.service.DigitArtifact(ctx, digit, lang)
	if err != nil {
		s.log.Warnf("No clip for digit %d (%s): %v", digit, lang, err)
		s.respondError(w, http.StatusServiceUnavailable, fmt.Sprintf("No speech available for %d", digit))
		return
	}
	s.respondJSON(w, http.StatusOK, newAudioResponse(art))
}

// handleCalibration handles GET /api/audio/calibration
func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	q := r.URL.Query()
	snr, err := parseSNR(q.Get("snr"), float64(s.config.Settings.Calibration.SNR))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	duration := s.config.Settings.Calibration.DurationSec
	if v := q.Get("duration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > MaxCalibrationSec {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("duration must be 0-%d seconds", MaxCalibrationSec))
			return
		}
		duration = n
	}

	art, err := s.service.CalibrationAudio(ctx, snr, duration)
	if err != nil {
		s.log.Errorf("Failed to render calibration noise: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to render calibration noise")
		return
	}
	s.respondJSON(w, http.StatusOK, newAudioResponse(art))
}

// handleDemo handles GET /api/audio/demo
func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	q := r.URL.Query()
	snr, err := parseSNR(q.Get("snr"), 10)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	digits := s.config.Settings.Stimuli.Digits
	if v := q.Get("digits"); v != "" {
		d, err := settings.ParseIntList(v)
		if err == nil {
			err = checkDigits(d)
		}
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid digits")
			return
		}
		digits = d
	}

	art, err := s.service.DemoAudio(ctx, digits, snr, s.config.Settings.Timing.ISIMs, s.language(r))
	if err != nil {
		s.log.Errorf("Failed to render demo: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to render demo")
		return
	}
	s.respondJSON(w, http.StatusOK, newAudioResponse(art))
}

// handleExportCSV handles POST /api/export/csv
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !s.decode(w, r, &req) {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="AuditoryMemoryTest.csv"`)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, s.service.ExportCSV(req.Trials))
}

// handleListClips handles GET /api/clips
func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	clips, err := s.service.ListClips()
	if err != nil {
		s.log.Errorf("Failed to list clips: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve clips")
		return
	}

	dtos := make([]ClipDTO, len(clips))
	for i, c := range clips {
		dtos[i] = ClipDTO{
			Code:       c.Code,
			Digit:      c.Digit,
			SizeBytes:  c.SizeBytes,
			DurationMs: c.DurationMs,
			Provider:   c.Provider,
		}
		if !c.CreatedAt.IsZero() {
			dtos[i].CreatedAt = c.CreatedAt.Format(time.RFC3339)
		}
	}
	s.respondJSON(w, http.StatusOK, ListClipsResponse{Clips: dtos, Count: len(dtos)})
}

// handleStartSession handles POST /api/sessions
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req StartSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	cfg := s.config.Settings
	if req.SubjectID != "" {
		cfg.Subject.ID = req.SubjectID
	}
	if req.Session > 0 {
		cfg.Subject.Session = req.Session
	}
	if req.Language != "" {
		cfg.Stimuli.Language = req.Language
	}
	if len(req.Digits) > 0 {
		cfg.Stimuli.Digits = req.Digits
	}
	if err := cfg.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	practice, mainTrials, _, err := s.service.GenerateTrials(cfg.ScheduleDesign())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ws := newWebSession(cfg, practice, mainTrials)
	s.sessions.add(ws)
	s.log.Infof("Session %s started for %s/%d (%d practice, %d main)", utils.ShortID(ws.id), cfg.Subject.ID, cfg.Subject.Session, len(practice), len(mainTrials))

	ws.mu.Lock()
	defer ws.mu.Unlock()
	resp, err := s.sessionResponse(ctx, ws)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

// handleSessionRoute routes requests to /api/sessions/{id}[/action]
func (s *Server) handleSessionRoute(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(r.URL.Path[len("/api/sessions/"):], "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Session ID required")
		return
	}
	ws, err := s.sessions.get(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetSession(w, r, ws)
	case action == "begin" && r.Method == http.MethodPost:
		s.handleBeginMain(w, r, ws)
	case action == "respond" && r.Method == http.MethodPost:
		s.handleRespond(w, r, ws)
	case action == "finish" && r.Method == http.MethodPost:
		s.handleFinish(w, r, ws)
	case action == "" || action == "begin" || action == "respond" || action == "finish":
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, ws *webSession) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	resp, err := s.sessionResponse(r.Context(), ws)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBeginMain(w http.ResponseWriter, r *http.Request, ws *webSession) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.begin(); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	resp, err := s.sessionResponse(r.Context(), ws)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleRespond records an answer. When the autosave fails the answer is
// still kept and the response carries 507 with the trial and the error so
// the client can alert the experimenter.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request, ws *webSession) {
	var req RespondRequest
	if !s.decode(w, r, &req) {
		return
	}
	saidYes, err := req.SaidYes()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RTMs < 0 {
		s.respondError(w, http.StatusBadRequest, "rt_ms must be non-negative")
		return
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	rt := time.Duration(req.RTMs * float64(time.Millisecond))
	answered, saveErr := ws.respond(saidYes, rt)
	if answered == nil {
		code := http.StatusConflict
		if !errors.Is(saveErr, session.ErrWrongStatus) && !errors.Is(saveErr, models.ErrAlreadyAnswered) {
			code = http.StatusInternalServerError
		}
		s.respondError(w, code, saveErr.Error())
		return
	}

	resp, err := s.sessionResponse(r.Context(), ws)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Last = answered

	status := http.StatusOK
	var pe *record.PersistError
	if errors.As(saveErr, &pe) {
		s.log.Errorf("AUTOSAVE FAILED for session %s %s trial %d: %v", utils.ShortID(ws.id), answered.Block, answered.TrialNum, saveErr)
		resp.SaveError = saveErr.Error()
		status = http.StatusInsufficientStorage
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request, ws *webSession) {
	ws.mu.Lock()
	sum, err := ws.finish()
	ws.mu.Unlock()
	if err != nil {
		s.log.Errorf("Final export for session %s failed: %v", utils.ShortID(ws.id), err)
		s.respondJSON(w, http.StatusInsufficientStorage, sum)
		return
	}
	s.sessions.remove(ws.id)
	s.log.Infof("Session %s finished: %d/%d correct", utils.ShortID(ws.id), sum.Correct, sum.Total)
	s.respondJSON(w, http.StatusOK, sum)
}

// sessionResponse renders the session state with the stimulus and probe
// audio of the pending trial. Callers hold ws.mu.
func (s *Server) sessionResponse(ctx context.Context, ws *webSession) (SessionResponse, error) {
	resp := SessionResponse{
		ID:           ws.id,
		Status:       string(ws.progress.Status()),
		AutosavePath: ws.appender.Path(),
	}
	t := ws.current()
	if t == nil {
		return resp, nil
	}

	timing := ws.cfg.Timing
	lang := ws.cfg.Stimuli.Language
	stim, err := s.service.TrialAudio(ctx, digitspan.TrialAudioRequest{
		Digits:       t.Digits,
		SNR:          float64(t.SNR),
		ISIMs:        timing.ISIMs,
		RetentionMs:  timing.RetentionMs,
		NoiseOnsetMs: timing.NoiseOnsetMs,
		Language:     lang,
	})
	if err != nil {
		return resp, fmt.Errorf("failed to render trial: %w", err)
	}
	if len(stim.Degraded) > 0 {
		s.log.Warnf("Session %s trial %d: no speech for %v, silence used", utils.ShortID(ws.id), t.TrialNum, stim.Degraded)
	}

	pending := &PendingTrialDTO{
		Block:    string(t.Block),
		TrialNum: t.TrialNum,
		Index:    ws.progress.Index(),
		Total:    len(ws.progress.Block()),
		Load:     t.Load,
		SNR:      t.SNR,
		Probe:    t.Probe,
		Stimulus: newAudioResponse(stim),
	}
	if probe, err := s.service.DigitArtifact(ctx, t.Probe, lang); err == nil {
		pending.ProbeAudio = newAudioResponse(probe)
	} else {
		s.log.Warnf("Probe audio for %d unavailable: %v", t.Probe, err)
	}
	resp.Current = pending
	return resp, nil
}

// parseSNR reads an snr query value, falling back to def when empty.
func parseSNR(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snr %q", v)
	}
	if err := checkSNR(f); err != nil {
		return 0, err
	}
	return f, nil
}

// language returns the lang query parameter or the configured default.
func (s *Server) language(r *http.Request) string {
	if l := r.URL.Query().Get("lang"); l != "" {
		return l
	}
	return s.config.Settings.Stimuli.Language
}
