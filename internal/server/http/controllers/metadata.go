package controllers

import (
	"io"
	"net/http"

	"github.com/rzbill/rawdata/internal/runtime"
)

// maxMetadataBytes caps metadata values accepted over HTTP.
const maxMetadataBytes = 1 << 20

// MetadataController exposes the per-topic metadata store.
type MetadataController struct {
	rt *runtime.Runtime
}

// NewMetadataController creates a new metadata controller.
func NewMetadataController(rt *runtime.Runtime) *MetadataController {
	return &MetadataController{rt: rt}
}

// RegisterRoutes registers metadata routes with the given mux.
//
//	GET    /v1/metadata?topic=t           {"topic":"t","keys":[...]}
//	GET    /v1/metadata?topic=t&key=k     value as octet-stream
//	PUT    /v1/metadata?topic=t&key=k     body is the value
//	DELETE /v1/metadata?topic=t&key=k
func (c *MetadataController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/metadata", c.handleMetadata)
}

func (c *MetadataController) handleMetadata(w http.ResponseWriter, r *http.Request) {
	topic, ok := requireTopic(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		if r.Method == http.MethodGet {
			c.handleKeys(w, r, topic)
			return
		}
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	store, err := c.rt.Metadata(r.Context(), topic)
	if err != nil {
		writeLogError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		v, found, err := store.Get(r.Context(), key)
		if err != nil {
			writeLogError(w, err)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "key not found")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(v)
	case http.MethodPut:
		v, err := io.ReadAll(io.LimitReader(r.Body, maxMetadataBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body")
			return
		}
		if len(v) > maxMetadataBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "value too large")
			return
		}
		if err := store.Put(r.Context(), key, v); err != nil {
			writeLogError(w, err)
			return
		}
		writeNoContent(w)
	case http.MethodDelete:
		if err := store.Remove(r.Context(), key); err != nil {
			writeLogError(w, err)
			return
		}
		writeNoContent(w)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (c *MetadataController) handleKeys(w http.ResponseWriter, r *http.Request, topic string) {
	store, err := c.rt.Metadata(r.Context(), topic)
	if err != nil {
		writeLogError(w, err)
		return
	}
	keys, err := store.Keys(r.Context())
	if err != nil {
		writeLogError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, metadataKeysResp{Topic: topic, Keys: keys})
}
