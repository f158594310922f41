package control

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"screen-recorder/internal/session"
)

const (
	socketBuffer     = 64
	socketWriteWait  = 5 * time.Second
	socketPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local control surface
	},
}

// EventsSocket handles GET /api/events/ws?since=N. It replays buffered
// events after since, then streams new ones until the client goes away.
func (h *Handler) EventsSocket(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be an integer"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	bus := h.ctrl.Events()
	ch := make(chan session.Event, socketBuffer)
	unsubscribe := bus.Subscribe(func(ev session.Event) {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping event for slow websocket client", slog.Int64("seq", ev.Seq))
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("websocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	last := since
	send := func(ev session.Event) bool {
		if ev.Seq <= last {
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Debug("websocket write failed", slog.String("error", err.Error()))
			return false
		}
		last = ev.Seq
		return true
	}

	for _, ev := range bus.Since(since) {
		if !send(ev) {
			return
		}
	}

	ping := time.NewTicker(socketPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if !send(ev) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}
		}
	}
}
