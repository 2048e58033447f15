package session

import (
	"sync"

	"github.com/xiaoyuanzhu-com/buildchat/log"
	"github.com/xiaoyuanzhu-com/buildchat/notifications"
)

// Workspace holds the one live session of a view. Opening another session
// closes the current one first, so two transports never run side by side.
type Workspace struct {
	base Options

	mu      sync.Mutex
	current *Session
	epoch   int
	closed  bool

	switches *notifications.Hub[*Session]
}

// NewWorkspace creates a workspace whose sessions share opts. SessionID,
// Deferred and Navigator are set per session.
func NewWorkspace(opts Options) *Workspace {
	opts.SessionID = ""
	opts.Deferred = nil
	opts.Navigator = nil
	return &Workspace{
		base:     opts,
		switches: notifications.NewHub[*Session](),
	}
}

// Open replaces the current session with one for id
func (w *Workspace) Open(id string, deferred *OutboundMessage) (*Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if w.current != nil {
		w.current.Close()
		w.current = nil
	}

	w.epoch++
	epoch := w.epoch

	opts := w.base
	opts.SessionID = id
	opts.Deferred = deferred
	opts.Navigator = NavigatorFunc(func(nav Navigation) {
		w.navigateFrom(epoch, nav)
	})

	s, err := Start(opts)
	if err != nil {
		return nil, err
	}
	w.current = s
	w.switches.Notify(s)
	log.Debug().Str("session", s.ID()).Msg("workspace opened session")
	return s, nil
}

// Navigate opens the session named by nav, delivering its deferred message
func (w *Workspace) Navigate(nav Navigation) {
	if _, err := w.navigate(nav); err != nil {
		log.Error().Err(err).Str("session", nav.SessionID).Msg("navigation failed")
	}
}

func (w *Workspace) navigate(nav Navigation) (*Session, error) {
	deferred, err := nav.Deferred()
	if err != nil {
		log.Warn().Err(err).Msg("ignoring undecodable deferred message")
		deferred = nil
	}
	return w.Open(nav.SessionID, deferred)
}

// navigateFrom ignores navigations requested by a session that is no longer current
func (w *Workspace) navigateFrom(epoch int, nav Navigation) {
	w.mu.Lock()
	stale := epoch != w.epoch || w.closed
	w.mu.Unlock()
	if stale {
		log.Debug().Str("session", nav.SessionID).Msg("dropping navigation from replaced session")
		return
	}
	w.Navigate(nav)
}

// Current returns the live session, or nil
func (w *Workspace) Current() *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Switches notifies every time a new session becomes current
func (w *Workspace) Switches() (<-chan *Session, func()) {
	return w.switches.Subscribe()
}

// Close closes the current session; the workspace cannot be reused
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.current != nil {
		w.current.Close()
		w.current = nil
	}
	w.switches.Shutdown()
}
