package server

import (
	"net/http"

	"github.com/vitwit/x402gov"
	"github.com/vitwit/x402gov/breaker"
	"github.com/vitwit/x402gov/gas"
	"github.com/vitwit/x402gov/types"
)

type NetworkHealth struct {
	Network string      `json:"network"`
	Gas     *gas.Status `json:"gas,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type HealthResponse struct {
	Status                string          `json:"status"`
	Version               string          `json:"version"`
	Breaker               string          `json:"circuitBreaker,omitempty"`
	SettlementsThisMinute int             `json:"settlementsThisMinute"`
	Networks              []NetworkHealth `json:"networks"`
}

// GET /health. Reports "degraded" with 503 when a fee payer is below its
// threshold, its balance is unreadable, or the breaker is open.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: x402gov.Version}

	if gov := s.x.Governance(); gov != nil {
		resp.Breaker = gov.BreakerState()
		resp.SettlementsThisMinute = gov.SettlementsThisMinute()
		if resp.Breaker == breaker.StateOpen {
			resp.Status = "degraded"
		}
	}

	sup, _ := s.x.Supported()
	for _, kind := range sup.Kinds {
		nh := NetworkHealth{Network: kind.Network}
		client, ok := s.x.Client(types.Network(kind.Network))
		if ok && client.Gas() != nil {
			st, err := client.Gas().CheckBalance(r.Context())
			if err != nil {
				nh.Error = err.Error()
				resp.Status = "degraded"
			} else {
				nh.Gas = &st
				if !st.Healthy {
					resp.Status = "degraded"
				}
			}
		}
		resp.Networks = append(resp.Networks, nh)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
