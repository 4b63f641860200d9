// Package notify tells connected listeners when the module set changes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/calld/internal/modules"
	"github.com/ent0n29/calld/internal/observability"
	"github.com/ent0n29/calld/internal/protocol"
)

// Listener receives encoded broadcast messages. A Send error means the
// listener is gone; the hub drops it.
type Listener interface {
	Send(payload []byte) error
}

// Hub is the set of connected listeners. Add and Remove are the only ways the
// set changes besides failed sends.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]Listener

	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{listeners: make(map[string]Listener), logger: logger, metrics: metrics}
}

// Add registers l and returns the id to Remove it with.
func (h *Hub) Add(l Listener) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.listeners[id] = l
	n := len(h.listeners)
	h.mu.Unlock()
	h.metrics.SetListeners(n)
	h.logger.Debug("listener added", "listener_id", id, "listeners", n)
	return id
}

// Remove is safe to call for ids that are already gone.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	_, ok := h.listeners[id]
	delete(h.listeners, id)
	n := len(h.listeners)
	h.mu.Unlock()
	if ok {
		h.metrics.SetListeners(n)
		h.logger.Debug("listener removed", "listener_id", id, "listeners", n)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Broadcast encodes msg once and sends it to a snapshot of the listeners.
// It returns how many sends succeeded.
func (h *Hub) Broadcast(msg any) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode broadcast: %w", err)
	}

	h.mu.RLock()
	snapshot := make(map[string]Listener, len(h.listeners))
	for id, l := range h.listeners {
		snapshot[id] = l
	}
	h.mu.RUnlock()

	sent := 0
	for id, l := range snapshot {
		if err := l.Send(payload); err != nil {
			h.metrics.ObserveBroadcast("dropped")
			h.logger.Debug("dropping listener after failed send", "listener_id", id, "error", err)
			h.Remove(id)
			continue
		}
		h.metrics.ObserveBroadcast("ok")
		sent++
	}
	return sent, nil
}

// Lister enumerates the current modules.
type Lister interface {
	ListAll(ctx context.Context) ([]modules.Descriptor, error)
}

// PublishModules lists the modules and broadcasts them as one
// modules_updated message.
func PublishModules(ctx context.Context, lister Lister, hub *Hub) error {
	mods, err := lister.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list modules: %w", err)
	}
	_, err = hub.Broadcast(protocol.NewModulesUpdated(mods))
	return err
}
