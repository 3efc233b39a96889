package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
)

// setupRoutes registers all HTTP routes and middleware
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Root endpoint
	mux.HandleFunc("/", s.handleRoot)

	// Health endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/languages", method(http.MethodGet, s.handleLanguages))

	// Scheduling and export
	mux.HandleFunc("/api/trials/generate", method(http.MethodPost, s.handleGenerateTrials))
	mux.HandleFunc("/api/export/csv", method(http.MethodPost, s.handleExportCSV))

	// Stimulus endpoints
	mux.HandleFunc("/api/audio/trial", method(http.MethodPost, s.handleTrialAudio))
	mux.HandleFunc("/api/audio/digit", method(http.MethodGet, s.handleDigitAudio))
	mux.HandleFunc("/api/audio/calibration", method(http.MethodGet, s.handleCalibration))
	mux.HandleFunc("/api/audio/demo", method(http.MethodGet, s.handleDemo))
	mux.HandleFunc("/api/clips", method(http.MethodGet, s.handleListClips))

	// Session endpoints
	mux.HandleFunc("/api/sessions", method(http.MethodPost, s.handleStartSession))
	mux.HandleFunc("/api/sessions/", s.handleSessionRoute)

	// Wrap with CORS middleware
	return corsMiddleware(s.config.AllowedOrigins)(loggingMiddleware(mux))
}

// method rejects requests whose method differs from m.
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusMethodNotAllowed)
			fmt.Fprintf(w, `{"error":%q,"message":"Method not allowed","code":%d}`+"\n", http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs all HTTP requests at DEBUG level
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		log := logger.GetLogger()
		next.ServeHTTP(wrapped, r)
		log.Debugf("%s %s from %s -> %d", r.Method, r.URL.Path, getClientIP(r), wrapped.statusCode)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// Start starts the HTTP server
func (s *Server) Start() error {
	handler := s.setupRoutes()
	st := s.config.Settings

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Infof("🚀 AuditoryMemoryTest server starting on %s", addr)
	s.log.Infof("   Clips:    %s (manifest %s)", st.Storage.AssetsDir, st.Storage.DBPath)
	s.log.Infof("   Data:     %s", st.Storage.OutputDir)
	s.log.Infof("   Language: %s, format %s", st.Stimuli.Language, st.Audio.Format)
	s.log.Infof("   CORS Origins: %v", s.config.AllowedOrigins)
	s.log.Infof("\nEndpoints:")
	s.log.Infof("   GET    /health                    - Health check")
	s.log.Infof("   GET    /api/languages             - Supported speech languages")
	s.log.Infof("   POST   /api/trials/generate       - Plan practice and main trials")
	s.log.Infof("   POST   /api/audio/trial           - Render one trial")
	s.log.Infof("   GET    /api/audio/digit           - Single digit clip")
	s.log.Infof("   GET    /api/audio/calibration     - Calibration noise")
	s.log.Infof("   GET    /api/audio/demo            - Demo sequence")
	s.log.Infof("   POST   /api/export/csv            - Trials as CSV")
	s.log.Infof("   GET    /api/clips                 - Cached clips")
	s.log.Infof("   POST   /api/sessions              - Start a session")
	s.log.Infof("   GET    /api/sessions/{id}         - Session state")
	s.log.Infof("   POST   /api/sessions/{id}/begin   - Start the main block")
	s.log.Infof("   POST   /api/sessions/{id}/respond - Record an answer")
	s.log.Infof("   POST   /api/sessions/{id}/finish  - Write the final export")

	return http.ListenAndServe(addr, handler)
}
