// Package analytics keeps an append-only record of every lobby operation plus
// two summary counters, persisted as a single JSON file across runs.
package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType identifies what kind of operation produced a ledger entry.
type EventType string

const (
	EventAuthentication EventType = "Authentication"
	EventRefresh        EventType = "Refresh"
	EventPlayerLoad     EventType = "PlayerLoad"
	EventDelete         EventType = "Delete"
	EventMassDelete     EventType = "MassDelete"
)

// Event is a single ledger entry. Entries keep insertion order and are never
// rewritten.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  EventType `json:"eventType"`
	Details    string    `json:"details"`
	LobbyCount int       `json:"lobbyCount"`
}

// ledgerFile is the on-disk shape of the ledger.
type ledgerFile struct {
	Events       []Event `json:"events"`
	TotalDeletes int     `json:"totalDeletes"`
	MaxPlayers   int     `json:"maxPlayers"`
}

// Ledger is the in-memory analytics state. All methods are safe for
// concurrent use.
type Ledger struct {
	mu           sync.Mutex
	path         string
	events       []Event
	totalDeletes int
	maxPlayers   int
	now          func() time.Time
}

// Open loads the ledger stored at path. A missing file yields an empty
// ledger; so does an unreadable or corrupt one, since analytics must never
// block the operations they describe.
func Open(path string) *Ledger {
	l := &Ledger{path: path, now: time.Now}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithField("path", path).WithError(err).Warn("Failed to read analytics file, starting empty")
		}
		return l
	}

	var data ledgerFile
	if err := json.Unmarshal(raw, &data); err != nil {
		log.WithField("path", path).WithError(err).Warn("Failed to decode analytics file, starting empty")
		return l
	}

	l.events = data.Events
	l.totalDeletes = data.TotalDeletes
	l.maxPlayers = data.MaxPlayers
	return l
}

// Record appends one event. It always succeeds.
func (l *Ledger) Record(eventType EventType, details string, lobbyCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, Event{
		Timestamp:  l.now(),
		EventType:  eventType,
		Details:    details,
		LobbyCount: lobbyCount,
	})
}

// AddDeletes bumps the lifetime deletion counter by n confirmed deletions.
func (l *Ledger) AddDeletes(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalDeletes += n
}

// ObservePlayers records a lobby's player count. The stored maximum only ever
// grows.
func (l *Ledger) ObservePlayers(count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if count > l.maxPlayers {
		l.maxPlayers = count
	}
}

// Events returns a copy of the event list in insertion order.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// LastEvent returns the most recent entry, if any.
func (l *Ledger) LastEvent() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return Event{}, false
	}
	return l.events[len(l.events)-1], true
}

func (l *Ledger) TotalDeletes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalDeletes
}

func (l *Ledger) MaxPlayers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxPlayers
}

// Persist writes the ledger to its file. A failure here is reported to the
// caller but must not block whatever operation triggered the flush.
func (l *Ledger) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := ledgerFile{
		Events:       l.events,
		TotalDeletes: l.totalDeletes,
		MaxPlayers:   l.maxPlayers,
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode analytics: %w", err)
	}
	if err := os.WriteFile(l.path, raw, 0644); err != nil {
		return fmt.Errorf("write analytics file: %w", err)
	}

	log.WithFields(log.Fields{
		"path":   l.path,
		"events": len(l.events),
	}).Debug("Persisted analytics ledger")
	return nil
}
