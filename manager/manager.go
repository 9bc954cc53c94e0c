// Package manager owns the lobby cache, the active session and the analytics
// ledger, and funnels every mutation through one object so the presentation
// layer only has to render results.
package manager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lobbyctl/analytics"
	"lobbyctl/lobby"
)

// Manager is the owning context for all lobby operations. Each operation
// holds the mutex for its whole duration, so a refresh can never interleave
// with a delete; callers may invoke operations from any goroutine.
type Manager struct {
	mu     sync.Mutex
	creds  lobby.Credentials
	client *lobby.Client
	ledger *analytics.Ledger

	session     *lobby.Session
	lobbies     []lobby.Lobby
	players     map[string][]lobby.Player
	cursor      string
	lastRefresh time.Time
	status      string
}

// New builds a manager around a fresh lobby client. The manager itself is the
// client's event sink.
func New(creds lobby.Credentials, cfg lobby.Config, ledger *analytics.Ledger) *Manager {
	m := &Manager{
		creds:   creds,
		ledger:  ledger,
		players: make(map[string][]lobby.Player),
	}
	m.client = lobby.NewClient(cfg, m)
	return m
}

// RecordEvent implements lobby.EventSink. The client only calls it from
// inside an operation that already holds mu, so the lobby count is read
// directly.
func (m *Manager) RecordEvent(eventType analytics.EventType, details string) {
	m.ledger.Record(eventType, details, len(m.lobbies))
}

// Authenticate validates the credentials and exchanges them for a bearer
// token. A validation failure never reaches the network and records no event.
func (m *Manager) Authenticate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.creds.Validate(); err != nil {
		m.status = err.Error()
		return err
	}

	session, err := m.client.Authenticate(m.creds)
	if err != nil {
		m.status = "Authentication failed: " + err.Error()
		return err
	}

	m.session = session
	m.status = "Authenticated successfully!"
	return nil
}

// Refresh discards the accumulated result set and fetches the first page of
// public lobbies.
func (m *Manager) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchPage("")
}

// LoadMore fetches the next page and appends it to the accumulated set. It is
// a no-op once the previous page reported exhaustion.
func (m *Manager) LoadMore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == "" {
		return nil
	}
	return m.fetchPage(m.cursor)
}

func (m *Manager) fetchPage(cursor string) error {
	if err := m.requireSession(); err != nil {
		return err
	}

	page, err := m.client.QueryLobbies(m.session, m.creds, cursor)
	if err != nil {
		m.status = "Error: " + err.Error()
		return err
	}

	if cursor == "" {
		m.lobbies = page.Results
	} else {
		m.lobbies = append(m.lobbies, page.Results...)
	}
	m.cursor = page.ContinuationToken

	for i := range page.Results {
		m.ledger.ObservePlayers(page.Results[i].PlayerCount())
	}

	m.lastRefresh = time.Now()
	m.status = fmt.Sprintf("Found %d public lobbies", len(m.lobbies))
	return nil
}

// LoadPlayers fetches a lobby's full roster and caches it under the lobby id.
// On failure the previously cached roster, if any, is left untouched.
func (m *Manager) LoadPlayers(lobbyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireSession(); err != nil {
		return err
	}

	lob, err := m.client.GetLobby(m.session, m.creds, lobbyID)
	if err != nil {
		m.status = "Player load failed: " + err.Error()
		return err
	}

	m.players[lobbyID] = lob.Players
	m.status = fmt.Sprintf("Loaded %d players for lobby %s", len(lob.Players), lobbyID)
	return nil
}

// Delete deletes a single lobby. On success the cache entry is removed and
// the lifetime deletion counter bumped; on failure the cache is untouched.
func (m *Manager) Delete(lobbyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireSession(); err != nil {
		return err
	}

	if err := m.client.DeleteLobby(m.session, m.creds, lobbyID); err != nil {
		m.status = "Delete failed: " + err.Error()
		return err
	}

	m.removeLobby(lobbyID)
	m.ledger.AddDeletes(1)
	m.status = "Deleted lobby: " + lobbyID
	return nil
}

// DeleteAll deletes every currently known lobby sequentially and returns the
// number of confirmed deletions. Lobbies whose delete fails stay in the
// cache. An empty cache is a no-op.
func (m *Manager) DeleteAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.lobbies) == 0 {
		return 0
	}
	if err := m.requireSession(); err != nil {
		return 0
	}

	snapshot := make([]lobby.Lobby, len(m.lobbies))
	copy(snapshot, m.lobbies)

	result := m.client.DeleteAll(m.session, m.creds, snapshot)

	m.lobbies = result.Remaining
	m.ledger.AddDeletes(result.Deleted)
	m.status = fmt.Sprintf("Deleted %d lobbies", result.Deleted)
	return result.Deleted
}

// ExportAnalytics flushes the ledger to disk immediately.
func (m *Manager) ExportAnalytics() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.Persist(); err != nil {
		log.WithError(err).Warn("Failed to export analytics")
		m.status = "Analytics export failed: " + err.Error()
		return err
	}
	m.status = "Analytics exported"
	return nil
}

// Close persists the ledger on shutdown.
func (m *Manager) Close() {
	if err := m.ledger.Persist(); err != nil {
		log.WithError(err).Warn("Failed to save analytics on shutdown")
	}
}

func (m *Manager) requireSession() error {
	if m.session == nil {
		m.status = "Please authenticate first"
		return errors.New("not authenticated")
	}
	return nil
}

func (m *Manager) removeLobby(lobbyID string) {
	kept := m.lobbies[:0]
	for _, lob := range m.lobbies {
		if lob.ID != lobbyID {
			kept = append(kept, lob)
		}
	}
	m.lobbies = kept
	delete(m.players, lobbyID)
}

// Lobbies returns a copy of the accumulated lobby list in display order.
func (m *Manager) Lobbies() []lobby.Lobby {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]lobby.Lobby, len(m.lobbies))
	copy(out, m.lobbies)
	return out
}

// Players returns a copy of the cached roster for a lobby; empty if no roster
// was ever loaded.
func (m *Manager) Players(lobbyID string) []lobby.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	roster := m.players[lobbyID]
	out := make([]lobby.Player, len(roster))
	copy(out, roster)
	return out
}

// HasMore reports whether the last query returned a continuation token.
func (m *Manager) HasMore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor != ""
}

// Status returns a one-line summary of the most recent operation's outcome.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) LastRefresh() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRefresh
}

// TotalDeletes and MaxPlayersSeen expose the ledger counters for display.
func (m *Manager) TotalDeletes() int {
	return m.ledger.TotalDeletes()
}

func (m *Manager) MaxPlayersSeen() int {
	return m.ledger.MaxPlayers()
}

func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}
