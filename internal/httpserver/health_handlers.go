package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/domain"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type detailedHealthResponse struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  healthResponse
// @Router       /health [get]
func handleHealth(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Service:   serviceName,
			Version:   version,
		})
	}
}

// @Summary      Detailed health check
// @Description  Health plus the status of the store and the profile directory
// @Tags         health
// @Produce      json
// @Success      200  {object}  detailedHealthResponse
// @Failure      503  {object}  detailedHealthResponse
// @Router       /health/detailed [get]
func handleHealthDetailed(st domain.Store, dir directory.Client, serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps := make(map[string]dependencyStatus, 2)
		status := "healthy"
		httpStatus := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			deps["store"] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			deps["store"] = dependencyStatus{Status: "healthy"}
		}

		// Decoration degrades gracefully, so a sick directory marks the
		// service degraded rather than unhealthy.
		switch err := dir.Ping(r.Context()); {
		case err == nil:
			deps["profile_directory"] = dependencyStatus{Status: "healthy"}
		case errors.Is(err, directory.ErrNotConfigured):
			deps["profile_directory"] = dependencyStatus{Status: "not_configured"}
		default:
			deps["profile_directory"] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			if status == "healthy" {
				status = "degraded"
			}
		}

		writeJSON(w, httpStatus, detailedHealthResponse{
			Status:       status,
			Timestamp:    time.Now().UTC(),
			Service:      serviceName,
			Version:      version,
			Dependencies: deps,
		})
	}
}
