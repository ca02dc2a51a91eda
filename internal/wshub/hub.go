// Package wshub is the websocket transport for an account's diff stream:
// it upgrades incoming connections, subscribes them to the owning
// AccountActor, and pumps every types.WsFrame the actor writes back out
// over the wire as JSON. Grounded on the teacher's own websocket feed
// (feeds/polymarket_ws.go) — same gorilla/websocket dependency, same
// non-blocking buffered-channel broadcast discipline, just the inverse
// direction (outbound to a browser instead of inbound from an exchange).
package wshub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/dexmatcher/internal/account"
	"github.com/web3guy0/dexmatcher/internal/directory"
	"github.com/web3guy0/dexmatcher/types"
)

const (
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
	frameBufferSz = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub serves one HTTP endpoint that upgrades to a per-account diff stream.
type Hub struct {
	dir *directory.Directory
}

func New(dir *directory.Directory) *Hub {
	return &Hub{dir: dir}
}

// ServeAccount upgrades the request and subscribes the connection to
// owner's actor, one connection per call; the handler stays alive for as
// long as the connection does.
func (h *Hub) ServeAccount(w http.ResponseWriter, r *http.Request, owner types.Address) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("wshub: upgrade failed")
		return
	}
	defer conn.Close()

	frames := make(chan types.WsFrame, frameBufferSz)
	h.dir.Get(owner).Tell(&account.WsSubscribe{Out: frames})

	stop := make(chan struct{})
	go h.readLoop(conn, stop)
	h.writeLoop(conn, frames, stop)
}

// readLoop only exists to notice the client going away (gorilla/websocket
// requires someone to keep reading for control frames, and it's the
// cheapest place to detect a closed connection); this stream is
// server-to-client only, so anything actually received is discarded.
func (h *Hub) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, frames <-chan types.WsFrame, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case frame := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				log.Warn().Err(err).Msg("wshub: write failed, closing")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
