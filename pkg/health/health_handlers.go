package health

import (
	"encoding/json"
	"net/http"
)

// HTTPHandler serves Check. Degraded still answers 200.
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, hc.Check(), StatusDegraded)
	}
}

// LivenessHandler serves CheckLiveness; anything but healthy is 503.
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, hc.CheckLiveness(), StatusHealthy)
	}
}

func writeResponse(w http.ResponseWriter, response Response, worstOK Status) {
	w.Header().Set("Content-Type", "application/json")
	ok := response.Status == StatusHealthy || response.Status == worstOK
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// Mount registers /healthz and /livez on mux.
func (hc *HealthChecker) Mount(mux *http.ServeMux) {
	mux.Handle("/healthz", hc.HTTPHandler())
	mux.Handle("/livez", hc.LivenessHandler())
}
