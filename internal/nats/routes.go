package nats

import (
	"github.com/nats-io/nats.go"

	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
)

func Routes(h *Handlers) map[string]nats.MsgHandler {
	routes := map[string]nats.MsgHandler{
		// User events
		services.SubjectUserDeleted: h.HandleUserDeleted,
	}
	if h.Scanner != nil {
		// File events
		routes[services.SubjectFileUploaded] = h.HandleFileUploaded
	}
	return routes
}
