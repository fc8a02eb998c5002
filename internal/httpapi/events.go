package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const eventsHeartbeat = 15 * time.Second

// handleOrderEvents streams order events for one pod (or all pods) as
// Server-Sent Events until the client goes away.
func (a *API) handleOrderEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	podID := strings.TrimSpace(r.URL.Query().Get("pod_id"))

	events, err := a.service.Events().Subscribe(ctx, podID)
	if err != nil {
		a.logger.Error("subscribe order events failed", "pod_id", podID, "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		a.logger.Warn("event stream not flushable", "error", err)
		return
	}

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", event.Type, event.OrderID, payload)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
