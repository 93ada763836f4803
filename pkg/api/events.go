package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/platinummonkey/fleet/pkg/plugins"
)

const (
	writeWait       = 10 * time.Second
	eventBufferSize = 256
)

// streamEvents upgrades to a websocket and streams manager events as JSON
// text frames. ?types=toast,hud restricts the stream; ?plugin=id restricts
// it to one plugin. Events are dropped for clients that fall behind.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	var types []plugins.EventType
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, plugins.EventType(t))
			}
		}
	}
	pluginID := r.URL.Query().Get("plugin")

	events := make(chan plugins.Event, eventBufferSize)
	unsubscribe := s.manager.Subscribe(func(ev plugins.Event) {
		if pluginID != "" && ev.PluginID != pluginID {
			return
		}
		select {
		case events <- ev:
		default:
			s.logger.WithField("event", string(ev.Type)).Debug("Event stream client behind, dropping event")
		}
	}, types...)
	defer unsubscribe()

	// Subscribed before the handshake completes so no event is missed.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.WithField("remote", r.RemoteAddr)
	log.Debug("Event stream opened")
	defer log.Debug("Event stream closed")

	// Reads only detect the close; clients never send data.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
