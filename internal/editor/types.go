// Package editor keeps one editing surface in sync with the page store.
//
// A Session debounces local edits into conditional upserts, keeps at most
// one upsert in flight, and reconciles records pushed by the live feed so a
// writer never sees its own saves echoed back as external changes.
package editor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict is matched by *ConflictError. Sessions recover from it on
	// their own and never report it.
	ErrConflict     = errors.New("version conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// ConflictError reports that the store holds a newer version than expected.
type ConflictError struct {
	Expected int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: expected version %d, current version %d", e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Record is a page as stored and as pushed by the live feed.
type Record struct {
	ID           uint      `json:"id"`
	SiteID       uint      `json:"siteId"`
	Key          string    `json:"key"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Version      int64     `json:"version"`
	ContentHash  string    `json:"contentHash"`
	LastEditedBy *uint     `json:"lastEditedBy,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Target names the page a session edits.
type Target struct {
	SiteSlug string
	Key      string
	Title    string
}

// SaveRequest is one conditional upsert.
type SaveRequest struct {
	SiteSlug        string `json:"-"`
	Key             string `json:"-"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// SaveResult is the store's answer to a successful upsert.
type SaveResult struct {
	ID          uint   `json:"id"`
	Version     int64  `json:"version"`
	ContentHash string `json:"contentHash"`
	Committed   bool   `json:"committed"`
}

// Store is the versioned page store.
type Store interface {
	// Get returns nil, nil when the page does not exist yet.
	Get(ctx context.Context, siteSlug, key string) (*Record, error)
	Upsert(ctx context.Context, req SaveRequest) (*SaveResult, error)
}

// Feed pushes the current record of a page, then every committed one. A nil
// record means the page does not exist yet. The channel closes when the
// subscription ends.
type Feed interface {
	Watch(ctx context.Context, siteSlug, key string) (<-chan *Record, error)
}

// Surface is the rendering side of an editor.
type Surface interface {
	SetContent(content string)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(content string)

func (f SurfaceFunc) SetContent(content string) { f(content) }

// Clock schedules the debounce timer.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SaveState is the client side bookkeeping of the save protocol.
type SaveState struct {
	IsSaving        bool
	LastSaveVersion int64
	LastSaveHash    string
	PendingSave     bool
}

// State is the observable phase of the save coordinator.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateSaving
	StateSavingWithPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateSaving:
		return "saving"
	case StateSavingWithPending:
		return "saving-with-pending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
