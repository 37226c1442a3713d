package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/ariefcatur/go-realtime-bowls/internal/realtime"
)

const defaultHeartbeat = 15 * time.Second

type snapshotMsg struct {
	Topic  string         `json:"topic"`
	Orders []orders.Order `json:"orders"`
	Bowl   *orders.Bowl   `json:"bowl,omitempty"`
}

// subscribe streams a topic as server-sent events: one "snapshot" event,
// then "upsert" and "remove" deltas. An upsert carrying "evicted" also drops
// that order from a full list window. A "resync" event means the server
// dropped the stream for falling behind; the client reconnects for a fresh
// snapshot.
func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	topic, err := realtime.ParseTopic(r.URL.Query().Get("topic"))
	if err != nil {
		h.fail(w, r, apperr.Validation(map[string]string{"topic": err.Error()}))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, r, errors.New("response writer does not support flushing"))
		return
	}

	ctx := r.Context()
	stream, err := h.Svc.Subscribe(ctx, h.Feed, topic)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer stream.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := h.Log.WithField("topic", topic.String())
	snap := snapshotMsg{Topic: topic.String(), Orders: stream.View.Orders(), Bowl: stream.View.Bowl()}
	if err := writeEvent(w, "snapshot", snap); err != nil {
		return
	}
	flusher.Flush()

	hb := h.Heartbeat
	if hb <= 0 {
		hb = defaultHeartbeat
	}
	for {
		nctx, cancel := context.WithTimeout(ctx, hb)
		d, ok, err := stream.Next(nctx)
		cancel()
		switch {
		case err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		case err != nil:
			return // client went away
		case !ok:
			if stream.Dropped() {
				log.Warn("subscriber dropped, asking client to resync")
				_ = writeEvent(w, "resync", map[string]string{"topic": topic.String()})
				flusher.Flush()
			}
			return
		}
		if err := writeEvent(w, string(d.Kind), d); err != nil {
			log.WithError(err).Debug("sse write failed")
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}
