package controllers

import (
	"net/http"

	"github.com/rzbill/rawdata/internal/runtime"
)

type healthResp struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

// GeneralController serves /v1/healthz and, when the runtime carries a
// registry, /metrics.
type GeneralController struct {
	rt *runtime.Runtime
}

func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.health)
	if m := c.rt.Metrics(); m != nil {
		mux.Handle("/metrics", m.Handler())
	}
}

// health pings the backend; 503 means it did not answer.
func (c *GeneralController) health(w http.ResponseWriter, r *http.Request) {
	provider := c.rt.Backend().Name()
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		respond(w, http.StatusServiceUnavailable, healthResp{Status: "not_serving", Provider: provider})
		return
	}
	writeJSON(w, healthResp{Status: "ok", Provider: provider})
}
