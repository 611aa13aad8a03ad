package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"shrike/internal/dispatch"
)

type searchRequest struct {
	Query string `json:"query"`
}

type readRequest struct {
	URL string `json:"url"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var payload searchRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "No JSON data provided", http.StatusBadRequest)
		return
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		writeError(w, "Missing or empty 'query' field", http.StatusBadRequest)
		return
	}

	log.Info("search request", "query", query)

	target := s.searchURL + "?q=" + url.QueryEscape(query)
	result := s.engine.Fetch(r.Context(), target)

	s.writeFetchResult(w, result, map[string]any{
		"query":  query,
		"source": "search",
	})
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	var payload readRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "No JSON data provided", http.StatusBadRequest)
		return
	}

	target := strings.TrimSpace(payload.URL)
	if target == "" {
		writeError(w, "Missing or empty 'url' field", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		writeError(w, "URL must start with http:// or https://", http.StatusBadRequest)
		return
	}

	log.Info("read request", "url", target)

	result := s.engine.Fetch(r.Context(), s.readerURL+target)

	s.writeFetchResult(w, result, map[string]any{
		"url":    target,
		"source": "reader",
	})
}

func (s *Server) writeFetchResult(w http.ResponseWriter, result dispatch.Result, fields map[string]any) {
	response := map[string]any{
		"success":   result.Success,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range fields {
		response[key] = value
	}

	if result.Success {
		response["content"] = string(result.Body)
		response["status_code"] = result.StatusCode
		writeJSON(w, http.StatusOK, response)
		return
	}

	response["error"] = result.Err.Error()
	response["error_kind"] = string(result.ErrorKind)
	writeJSON(w, http.StatusBadGateway, response)
}
