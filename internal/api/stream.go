package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/ClaudeSessionAuth/internal/logging"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// streamAuth upgrades to a websocket and sends every state of the key's session as
// JSON, starting with the states already recorded. The server closes the socket
// after the terminal state.
func (s *Server) streamAuth(c *gin.Context) {
	key := c.Param("key")
	states, stop, err := s.registry.Subscribe(key)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	defer stop()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.FromContext(c.Request.Context()).WithField("session", key).Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	entry := logging.FromContext(c.Request.Context()).WithField("session", key)

	// The client only ever closes; reading surfaces that.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, errRead := conn.ReadMessage(); errRead != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			entry.Debug("state stream closed by client")
			return
		case <-ping.C:
			if errPing := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); errPing != nil {
				return
			}
		case state, ok := <-states:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "authentication finished")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if errWrite := conn.WriteJSON(state); errWrite != nil {
				entry.Debugf("state stream write failed: %v", errWrite)
				return
			}
		}
	}
}
