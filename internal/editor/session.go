package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pagesmith/internal/contenthash"
	"github.com/rs/zerolog"
)

const (
	DefaultDebounce       = 1500 * time.Millisecond
	DefaultSaveTimeout    = 15 * time.Second
	DefaultReconnectDelay = time.Second
)

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	Debounce       time.Duration
	SaveTimeout    time.Duration
	ReconnectDelay time.Duration
	ReadOnly       bool
	Logger         zerolog.Logger
	// OnError receives failures the writer should hear about. Conflicts are
	// resolved internally and never reported.
	OnError func(error)
	Clock   Clock
}

// Session edits one page at a time. All SaveState mutation happens under mu;
// store calls and surface updates happen outside it.
type Session struct {
	store   Store
	surface Surface
	opts    Options
	clock   Clock
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	target      Target
	buffer      string
	save        SaveState
	initialized bool
	gen         uint64
	timer       Timer
	timerSeq    uint64
	deferred    *Record
	connected   bool
	closed      bool
	retarget    chan struct{}
}

// New creates a session for target. It stays uninitialized, and ignores
// Save, until the first record arrives through Receive, Watch or Load.
func New(store Store, surface Surface, target Target, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	if surface == nil {
		surface = SurfaceFunc(func(string) {})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		store:    store,
		surface:  surface,
		opts:     opts,
		clock:    clock,
		log:      opts.Logger.With().Str("component", "editor").Str("site", target.SiteSlug).Str("key", target.Key).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		target:   target,
		retarget: make(chan struct{}),
	}
}

// Save records the latest local content. The upsert happens once the
// debounce window passes without further edits; while an upsert is in
// flight the content is only marked pending.
func (s *Session) Save(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.opts.ReadOnly || !s.initialized {
		return
	}
	s.buffer = content
	if s.save.IsSaving {
		s.save.PendingSave = true
		return
	}
	s.armLocked()
}

// Flush skips the debounce window and saves now. It returns once the save
// cycle it started has settled.
func (s *Session) Flush() {
	s.mu.Lock()
	if s.closed || !s.initialized || s.opts.ReadOnly {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	if s.save.IsSaving {
		s.save.PendingSave = true
		s.mu.Unlock()
		return
	}
	gen := s.gen
	s.mu.Unlock()
	s.saveLoop(gen)
}

// Load fetches the current record and feeds it to Receive.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	target, gen := s.target, s.gen
	s.mu.Unlock()

	rec, err := s.store.Get(ctx, target.SiteSlug, target.Key)
	if err != nil {
		return err
	}
	s.receive(gen, rec)
	return nil
}

// Receive reconciles a record pushed by the live feed.
func (s *Session) Receive(rec *Record) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.receive(gen, rec)
}

func (s *Session) receive(gen uint64, rec *Record) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	content, apply := s.receiveLocked(rec)
	s.mu.Unlock()
	if apply {
		s.surface.SetContent(content)
	}
}

// receiveLocked applies the reconciliation rules in order and reports the
// content the surface must show, if any.
func (s *Session) receiveLocked(rec *Record) (string, bool) {
	if s.closed {
		return "", false
	}

	if !s.initialized {
		s.initialized = true
		if rec == nil {
			s.buffer = ""
			s.save.LastSaveVersion = 0
			s.save.LastSaveHash = contenthash.Sum("")
		} else {
			s.buffer = rec.Content
			s.save.LastSaveVersion = rec.Version
			s.save.LastSaveHash = rec.ContentHash
		}
		return s.buffer, true
	}

	if rec == nil {
		return "", false
	}

	if s.save.IsSaving {
		// 保存结束后再重放最后一条被忽略的记录
		s.deferred = rec
		return "", false
	}

	if rec.Version < s.save.LastSaveVersion {
		return "", false
	}

	if rec.ContentHash == s.save.LastSaveHash {
		s.save.LastSaveVersion = rec.Version
		return "", false
	}

	if normalize(rec.Content) == normalize(s.buffer) {
		s.save.LastSaveVersion = rec.Version
		s.save.LastSaveHash = rec.ContentHash
		return "", false
	}

	s.stopTimerLocked()
	s.buffer = rec.Content
	s.save.LastSaveVersion = rec.Version
	s.save.LastSaveHash = rec.ContentHash
	s.save.PendingSave = false
	return rec.Content, true
}

// Open switches the session to another page. State of the previous page is
// discarded, including the result of any upsert still in flight.
func (s *Session) Open(target Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopTimerLocked()
	s.gen++
	s.target = target
	s.buffer = ""
	s.save = SaveState{}
	s.initialized = false
	s.deferred = nil
	s.log = s.opts.Logger.With().Str("component", "editor").Str("site", target.SiteSlug).Str("key", target.Key).Logger()
	close(s.retarget)
	s.retarget = make(chan struct{})
}

// Watch pumps the live feed of the current target into Receive until ctx
// ends or the session closes, re-subscribing whenever Open switches pages
// or the subscription drops.
func (s *Session) Watch(ctx context.Context, feed Feed) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil
		}
		target, gen, retarget := s.target, s.gen, s.retarget
		s.mu.Unlock()

		subCtx, cancel := context.WithCancel(ctx)
		ch, err := feed.Watch(subCtx, target.SiteSlug, target.Key)
		if err != nil {
			cancel()
			s.setConnected(false)
			s.report(err)
			if werr := s.wait(ctx, retarget); werr != nil {
				return werr
			}
			continue
		}
		s.setConnected(true)

		err = s.pump(ctx, gen, ch, retarget)
		cancel()
		s.setConnected(false)
		if err != nil {
			return err
		}
	}
}

// pump returns nil when the subscription should be re-established.
func (s *Session) pump(ctx context.Context, gen uint64, ch <-chan *Record, retarget <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return nil
		case <-retarget:
			return nil
		case rec, ok := <-ch:
			if !ok {
				s.log.Debug().Msg("live feed closed, reconnecting")
				return s.wait(ctx, retarget)
			}
			s.receive(gen, rec)
		}
	}
}

func (s *Session) wait(ctx context.Context, retarget <-chan struct{}) error {
	t := time.NewTimer(s.opts.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
	case <-retarget:
	case <-t.C:
	}
	return nil
}

// Connected reports whether the live feed subscription is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// State reports the current phase of the save coordinator.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.save.IsSaving && s.save.PendingSave:
		return StateSavingWithPending
	case s.save.IsSaving:
		return StateSaving
	case s.timer != nil:
		return StateDebouncing
	default:
		return StateIdle
	}
}

// Snapshot returns a copy of the save bookkeeping.
func (s *Session) Snapshot() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save
}

// Content returns the session's view of the document.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// Target returns the page being edited.
func (s *Session) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Initialized reports whether the first record has been adopted.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Close stops the timer and any Watch loop. Pending edits are dropped;
// call Flush first to keep them.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.cancel()
}

func (s *Session) armLocked() {
	s.stopTimerLocked()
	s.timerSeq++
	gen, seq := s.gen, s.timerSeq
	s.timer = s.clock.AfterFunc(s.opts.Debounce, func() { s.fire(gen, seq) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) fire(gen, seq uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || seq != s.timerSeq {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.saveLoop(gen)
}

// saveLoop runs upserts until nothing is pending. At most one runs at a time
// per session because IsSaving is checked and set under mu.
func (s *Session) saveLoop(gen uint64) {
	for {
		s.mu.Lock()
		if s.closed || gen != s.gen || s.save.IsSaving || !s.initialized {
			s.mu.Unlock()
			return
		}
		content := s.buffer
		if contenthash.Sum(content) == s.save.LastSaveHash {
			s.save.PendingSave = false
			s.mu.Unlock()
			return
		}
		expected := s.save.LastSaveVersion
		req := SaveRequest{
			SiteSlug:        s.target.SiteSlug,
			Key:             s.target.Key,
			Title:           s.target.Title,
			Content:         content,
			ExpectedVersion: &expected,
		}
		s.save.IsSaving = true
		s.save.PendingSave = false
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(s.ctx, s.opts.SaveTimeout)
		res, err := s.store.Upsert(ctx, req)
		cancel()

		again := s.settle(gen, req, res, err)
		if !again {
			return
		}
	}
}

// settle records the outcome of one upsert and reports whether another
// cycle should run immediately.
func (s *Session) settle(gen uint64, req SaveRequest, res *SaveResult, err error) bool {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return false
	}
	s.save.IsSaving = false
	deferred := s.deferred
	s.deferred = nil

	switch {
	case err == nil:
		s.save.LastSaveVersion = res.Version
		s.save.LastSaveHash = res.ContentHash
		s.log.Debug().Int64("version", res.Version).Bool("committed", res.Committed).Msg("saved")

		var content string
		var apply bool
		if deferred != nil {
			content, apply = s.receiveLocked(deferred)
		}
		pending := s.save.PendingSave
		s.mu.Unlock()
		if apply {
			s.surface.SetContent(content)
		}
		return pending

	case errors.Is(err, ErrConflict):
		s.save.PendingSave = false
		s.mu.Unlock()
		s.log.Info().Err(err).Msg("save conflict, reloading")
		s.recoverConflict(gen, req)
		return false

	default:
		pending := s.save.PendingSave
		if pending {
			s.save.PendingSave = false
			s.armLocked()
		}
		var content string
		var apply bool
		if deferred != nil {
			content, apply = s.receiveLocked(deferred)
		}
		s.mu.Unlock()
		if apply {
			s.surface.SetContent(content)
		}
		s.report(err)
		return false
	}
}

// recoverConflict replaces local state with the authoritative record; the
// live feed may have been ignored while the rejected save was in flight.
func (s *Session) recoverConflict(gen uint64, req SaveRequest) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.SaveTimeout)
	defer cancel()
	rec, err := s.store.Get(ctx, req.SiteSlug, req.Key)
	if err != nil {
		s.report(err)
		return
	}
	s.receive(gen, rec)

	// 胜出记录可能与上次保存的内容相同而被当作回声，本地改动需要重新排队
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed || s.save.IsSaving || s.timer != nil {
		return
	}
	if contenthash.Sum(s.buffer) == s.save.LastSaveHash {
		return
	}
	if rec != nil && normalize(rec.Content) == normalize(s.buffer) {
		return
	}
	s.armLocked()
}

func (s *Session) report(err error) {
	if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, context.Canceled) {
		return
	}
	s.log.Warn().Err(err).Msg("save failed")
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}
