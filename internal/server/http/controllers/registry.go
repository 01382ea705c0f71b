package controllers

import (
	"context"
	"net/http"

	"github.com/rzbill/rawdata/internal/runtime"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general  *GeneralController
	messages *MessagesController
	tail     *TailController
	metadata *MetadataController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:  NewGeneralController(rt),
		messages: NewMessagesController(rt, logger),
		tail:     NewTailController(rt, logger),
		metadata: NewMetadataController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
//
// This covers health and metrics, publishing, last-message and cursor
// lookups, SSE tailing and topic metadata.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.messages.RegisterRoutes(mux)
	r.tail.RegisterRoutes(mux)
	r.metadata.RegisterRoutes(mux)
}

// Close releases controller-held sessions.
func (r *ControllerRegistry) Close(ctx context.Context) error {
	return r.messages.Close(ctx)
}
