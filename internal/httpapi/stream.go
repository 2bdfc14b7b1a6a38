package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/signalsfoundry/plant-trainer/internal/broadcast"
	"github.com/signalsfoundry/plant-trainer/internal/logging"
)

// streamState pushes every published frame as a server-sent event. The
// current frame is sent first; a client that falls behind skips frames.
func (a *API) streamState(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	log := logging.LoggerFromContext(ctx, a.log)

	sub := a.session.Subscribe("sse:" + logging.OperationIDFromContext(ctx))
	defer a.session.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	log.Info(ctx, "sse observer connected")

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "sse observer disconnected")
			return
		case f, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeFrame(w, f); err != nil {
				log.Warn(ctx, "sse write failed", logging.Err(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, f broadcast.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: frame\ndata: %s\n\n", f.Seq, data)
	return err
}
