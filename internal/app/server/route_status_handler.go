package server

import (
	"net/http"
	"time"

	"shrike/internal/database"
)

func (s *Server) serviceStats() map[string]any {
	stats := s.pool.SnapshotStats()
	return map[string]any{
		"uptime_seconds":      int(time.Since(s.startedAt).Seconds()),
		"total_proxies":       stats.TotalCandidates,
		"working_proxies":     stats.WorkingCount,
		"failed_proxies":      stats.FailedCount,
		"untested_proxies":    stats.UntestedCount,
		"total_attempts":      stats.TotalAttempts,
		"successful_attempts": stats.SuccessfulAttempts,
		"failed_attempts":     stats.FailedAttempts,
	}
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "shrike",
		"description": "Proxy-rotating relay for upstream search and reader services",
		"features": []string{
			"Automatic proxy rotation",
			"Out-of-band health probing",
			"Fallback to direct connection",
			"Request statistics",
		},
		"endpoints": map[string]string{
			"/":        "API documentation (this page)",
			"/search":  "POST - Search the web through the upstream search service",
			"/read":    "POST - Read URL content through the upstream reader service",
			"/health":  "GET - Health check and statistics",
			"/stats":   "GET - Detailed statistics",
			"/metrics": "GET - Prometheus metrics",
		},
		"usage_examples": map[string]any{
			"search": map[string]any{
				"method": "POST",
				"url":    "/search",
				"body":   map[string]string{"query": "latest AI developments"},
			},
			"read": map[string]any{
				"method": "POST",
				"url":    "/read",
				"body":   map[string]string{"url": "https://example.com"},
			},
		},
		"stats": s.serviceStats(),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.SnapshotStats()

	status := "healthy"
	if stats.WorkingCount == 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "shrike",
		"stats":     s.serviceStats(),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	poolStats := s.pool.SnapshotStats()

	working := s.pool.WorkingRecords(5)
	workingDetails := make([]map[string]any, 0, len(working))
	for _, record := range working {
		detail := map[string]any{
			"proxy":     record.Endpoint.URL(),
			"attempts":  record.AttemptCount,
			"successes": record.SuccessCount,
		}
		if record.Country != "" {
			detail["country"] = record.Country
		}
		workingDetails = append(workingDetails, detail)
	}

	payload := map[string]any{
		"service_stats": s.serviceStats(),
		"proxy_details": map[string]any{
			"working_count":   poolStats.WorkingCount,
			"failed_count":    poolStats.FailedCount,
			"untested_count":  poolStats.UntestedCount,
			"working_proxies": workingDetails,
			"last_updated":    time.Now().UTC().Format(time.RFC3339),
		},
	}

	if database.DB != nil {
		if snapshots, err := database.RecentPoolSnapshots(r.Context(), 10); err == nil {
			payload["snapshot_history"] = snapshots
		}
	}

	writeJSON(w, http.StatusOK, payload)
}
