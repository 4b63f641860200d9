package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/calld/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsOutboundSize = 64
)

var (
	errListenerClosed  = errors.New("listener closed")
	errListenerBacklog = errors.New("listener outbound queue full")
)

// wsListener adapts one websocket connection to notify.Listener. Writes go
// through a single goroutine; Send only queues. A listener whose queue
// overflows is disconnected so the client can reconnect and resync.
type wsListener struct {
	outbound chan []byte
	done     chan struct{}

	overflowOnce sync.Once
	onOverflow   func()
}

func newWSListener(size int, onOverflow func()) *wsListener {
	return &wsListener{
		outbound:   make(chan []byte, size),
		done:       make(chan struct{}),
		onOverflow: onOverflow,
	}
}

func (l *wsListener) Send(payload []byte) error {
	select {
	case <-l.done:
		return errListenerClosed
	default:
	}
	select {
	case l.outbound <- payload:
		return nil
	case <-l.done:
		return errListenerClosed
	default:
		l.overflowOnce.Do(l.onOverflow)
		return errListenerBacklog
	}
}

func (l *wsListener) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return l.Send(payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live updates not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	l := newWSListener(wsOutboundSize, func() {
		s.logger.Warn("websocket listener fell behind, disconnecting")
		_ = conn.Close()
	})
	// Register before the snapshot so a change landing in between still
	// reaches this client.
	id := s.hub.Add(l)
	s.sendModules(ctx, l)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-l.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			// A saturated queue disconnects the client; writes stay single-threaded.
			_ = l.sendJSON(protocol.NewErrorEvent("invalid_client_message", err.Error()))
			continue
		}
		switch parsed.(type) {
		case protocol.Ping:
			_ = l.sendJSON(protocol.Pong{Type: protocol.TypePong})
		case protocol.ListModules:
			s.sendModules(ctx, l)
		}
	}

	s.hub.Remove(id)
	close(l.done)
	cancel()
	<-writerDone
}

func (s *Server) sendModules(ctx context.Context, l *wsListener) {
	mods, err := s.modules.ListAll(ctx)
	if err != nil {
		s.logger.Warn("list modules for listener failed", "error", err)
		_ = l.sendJSON(protocol.NewErrorEvent("modules_unavailable", err.Error()))
		return
	}
	_ = l.sendJSON(protocol.NewModulesUpdated(mods))
}
