package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/scribe-api/internal/api/shared"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/notify"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
)

// StatusHandler serves the status event stream.
type StatusHandler struct {
	notifier     *notify.Notifier
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(notifier *notify.Notifier, writeTimeout time.Duration, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{
		notifier:     notifier,
		writeTimeout: writeTimeout,
		logger:       logger.With(slog.String("component", "status_handler")),
	}
}

// Stream handles GET /api/status/sse. It holds the connection open until
// the client goes away or the notifier closes the subscription.
func (h *StatusHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	sink, err := notify.NewSSEWriter(w, h.writeTimeout)
	if err != nil {
		log.Error("status stream not supported", "error", err)
		return
	}
	defer sink.Close()

	sub, err := h.notifier.Subscribe(r.Context(), ownerID, sink)
	if err != nil {
		log.Warn("failed to open status stream", "error", err)
		return
	}
	defer h.notifier.Unsubscribe(sub.ID)

	select {
	case <-r.Context().Done():
	case <-sub.Done():
	}
}

// Connections handles GET /api/status/sse/connections.
func (h *StatusHandler) Connections(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, ConnectionsResponse{
		ActiveConnections: h.notifier.ActiveCount(),
	})
}
