package server

import (
	"sync"
	"time"

	"seatmanager/internal/seating"
	"seatmanager/internal/workflow"
)

// Workspace is the listing and dialog state of one logged in session.
type Workspace struct {
	View  *seating.View
	Modal *workflow.Modal

	mu        sync.Mutex
	updatedAt time.Time
}

func (w *Workspace) touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.updatedAt = time.Now()
}

func (w *Workspace) isExpired(timeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.updatedAt) > timeout
}

// WorkspaceStore keeps workspaces by session id.
type WorkspaceStore struct {
	workspaces map[string]*Workspace
	mu         sync.RWMutex
	timeout    time.Duration
	create     func(actor string) *Workspace
}

// NewWorkspaceStore creates a store that builds missing workspaces with create.
func NewWorkspaceStore(timeout time.Duration, create func(actor string) *Workspace) *WorkspaceStore {
	if timeout <= 0 {
		timeout = 12 * time.Hour
	}
	return &WorkspaceStore{
		workspaces: make(map[string]*Workspace),
		timeout:    timeout,
		create:     create,
	}
}

func (ws *WorkspaceStore) Get(sessionID string) *Workspace {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.workspaces[sessionID]
}

// GetOrCreate returns the live workspace of the session or a fresh one acting as actor.
func (ws *WorkspaceStore) GetOrCreate(sessionID, actor string) *Workspace {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	w, ok := ws.workspaces[sessionID]
	if !ok || w.isExpired(ws.timeout) {
		w = ws.create(actor)
		ws.workspaces[sessionID] = w
	}
	w.touch()
	return w
}

func (ws *WorkspaceStore) Delete(sessionID string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.workspaces, sessionID)
}

func (ws *WorkspaceStore) Len() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.workspaces)
}

// Cleanup removes expired workspaces.
func (ws *WorkspaceStore) Cleanup() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	removed := 0
	for id, w := range ws.workspaces {
		if w.isExpired(ws.timeout) {
			delete(ws.workspaces, id)
			removed++
		}
	}
	return removed
}
