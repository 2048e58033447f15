// Package api implements the HTTP and websocket surface of the mock build service.
package api

import (
	"sync"

	"github.com/xiaoyuanzhu-com/buildchat/server"
	"github.com/xiaoyuanzhu-com/buildchat/session"
)

// Handlers holds references to server components
type Handlers struct {
	server *server.Server

	// Last sandbox status reported per chat
	mu        sync.Mutex
	sandboxes map[int64]session.Status
}

// NewHandlers creates a new Handlers instance with server reference
func NewHandlers(srv *server.Server) *Handlers {
	return &Handlers{
		server:    srv,
		sandboxes: make(map[int64]session.Status),
	}
}

func (h *Handlers) setSandboxStatus(chatID int64, st session.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st == session.StatusOffline {
		delete(h.sandboxes, chatID)
		return
	}
	h.sandboxes[chatID] = st
}

func (h *Handlers) sandboxStatus(chatID int64) session.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.sandboxes[chatID]; ok {
		return st
	}
	return session.StatusOffline
}
