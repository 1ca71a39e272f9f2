package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"bin-kiosk/pkg/collection"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")

	result := s.collections.Next(r.Context())
	if err := templates.ExecuteTemplate(w, "index.tmpl", result); err != nil {
		s.logger.Error("Failed to render template", "template", "index.tmpl", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleBins always answers 200; clients read the error field.
func (s *Server) handleBins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.collections.Next(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, stale, err := s.collections.Upcoming(r.Context())
	if err != nil {
		s.logger.Warn("Calendar export unavailable", "error", err)
		if errors.Is(err, collection.ErrConfigMissing) {
			http.Error(w, collection.ErrConfigMissing.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, collection.ErrNoData.Error(), http.StatusServiceUnavailable)
		return
	}

	body, err := encodeCalendar(events, s.now())
	if err != nil {
		s.logger.Error("Failed to encode calendar", "events", len(events), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="bins.ics"`)
	if stale {
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("Failed to write calendar response", "error", err)
	}
}

type cacheListing struct {
	WindowSeconds int64 `json:"windowSeconds"`
	Entries       any   `json:"entries"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos, err := s.cache.List(r.Context(), s.cacheWindow)
	if err != nil {
		s.logger.Error("Failed to list cache entries", "error", err)
		http.Error(w, "Failed to list cache", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, cacheListing{
		WindowSeconds: int64(s.cacheWindow.Seconds()),
		Entries:       infos,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := clientIP(r)
	if !s.pollLimiter.allow(ip) {
		s.logger.Warn("Refresh rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	s.logger.Info("Poll endpoint triggered", "ip", ip)

	if err := s.collections.Refresh(r.Context()); err != nil {
		s.logger.Error("Cache refresh failed", "error", err)
		http.Error(w, "Refresh failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"completed"}`); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "error", err)
	}
}
