package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pagesmith/internal/contenthash"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return &fakeTimerHandle{clock: c, t: t}
}

type fakeTimerHandle struct {
	clock *fakeClock
	t     *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	active := !h.t.stopped && !h.t.fired
	h.t.stopped = true
	return active
}

// Fire runs every armed timer synchronously and returns how many ran.
func (c *fakeClock) Fire() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

type fakeStore struct {
	mu       sync.Mutex
	pages    map[string]*Record
	upserts  []SaveRequest
	gets     int
	failNext error
	gate     chan struct{}
	started  chan SaveRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: map[string]*Record{}, started: make(chan SaveRequest, 16)}
}

func (s *fakeStore) put(slug, key, content string, version int64) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &Record{Key: key, Content: content, Version: version, ContentHash: contenthash.Sum(content)}
	s.pages[slug+"/"+key] = rec
	return rec
}

func (s *fakeStore) Get(_ context.Context, slug, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	rec, ok := s.pages[slug+"/"+key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Upsert(_ context.Context, req SaveRequest) (*SaveResult, error) {
	s.mu.Lock()
	s.upserts = append(s.upserts, req)
	gate := s.gate
	s.mu.Unlock()

	s.started <- req
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	id := req.SiteSlug + "/" + req.Key
	hash := contenthash.Sum(req.Content)
	cur, ok := s.pages[id]
	if !ok {
		s.pages[id] = &Record{Key: req.Key, Content: req.Content, Version: 1, ContentHash: hash}
		return &SaveResult{Version: 1, ContentHash: hash, Committed: true}, nil
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != cur.Version {
		return nil, &ConflictError{Expected: *req.ExpectedVersion, Current: cur.Version}
	}
	if cur.ContentHash == hash {
		return &SaveResult{Version: cur.Version, ContentHash: hash}, nil
	}
	cur.Content = req.Content
	cur.ContentHash = hash
	cur.Version++
	return &SaveResult{Version: cur.Version, ContentHash: hash, Committed: true}, nil
}

func (s *fakeStore) upsertCalls() []SaveRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SaveRequest(nil), s.upserts...)
}

type surfaceRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *surfaceRecorder) SetContent(content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, content)
}

func (r *surfaceRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type harness struct {
	store   *fakeStore
	clock   *fakeClock
	surface *surfaceRecorder
	session *Session
	errs    []error
	errMu   sync.Mutex
}

func newHarness(t *testing.T, store *fakeStore, opts Options) *harness {
	t.Helper()
	h := &harness{store: store, clock: &fakeClock{}, surface: &surfaceRecorder{}}
	opts.Clock = h.clock
	opts.Logger = zerolog.Nop()
	opts.OnError = func(err error) {
		h.errMu.Lock()
		h.errs = append(h.errs, err)
		h.errMu.Unlock()
	}
	h.session = New(store, h.surface, Target{SiteSlug: "alice", Key: "home", Title: "Home"}, opts)
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) errors() []error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return append([]error(nil), h.errs...)
}

// fireAsync runs the debounce timer in the background for gated stores.
func (h *harness) fireAsync(t *testing.T) (SaveRequest, <-chan struct{}) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.clock.Fire()
	}()
	select {
	case req := <-h.store.started:
		return req, done
	case <-time.After(2 * time.Second):
		t.Fatal("upsert did not start")
	}
	return SaveRequest{}, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("save cycle did not finish")
	}
}

func loadedHarness(t *testing.T, content string, version int64) *harness {
	t.Helper()
	store := newFakeStore()
	store.put("alice", "home", content, version)
	h := newHarness(t, store, Options{})
	require.NoError(t, h.session.Load(context.Background()))
	return h
}

func TestLoadInitializesFromRecord(t *testing.T) {
	h := loadedHarness(t, "<p>a</p>", 3)

	assert.True(t, h.session.Initialized())
	assert.Equal(t, "<p>a</p>", h.session.Content())
	assert.Equal(t, []string{"<p>a</p>"}, h.surface.Calls())
	snap := h.session.Snapshot()
	assert.Equal(t, int64(3), snap.LastSaveVersion)
	assert.Equal(t, contenthash.Sum("<p>a</p>"), snap.LastSaveHash)
	assert.Equal(t, StateIdle, h.session.State())
}

func TestLoadMissingPageStartsEmpty(t *testing.T) {
	h := newHarness(t, newFakeStore(), Options{})
	require.NoError(t, h.session.Load(context.Background()))

	snap := h.session.Snapshot()
	assert.Equal(t, int64(0), snap.LastSaveVersion)
	assert.Equal(t, contenthash.Sum(""), snap.LastSaveHash)

	h.session.Save("hello")
	require.Equal(t, 1, h.clock.Fire())
	<-h.store.started

	calls := h.store.upsertCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].ExpectedVersion)
	assert.Equal(t, int64(0), *calls[0].ExpectedVersion)
	assert.Equal(t, "Home", calls[0].Title)
	assert.Equal(t, int64(1), h.session.Snapshot().LastSaveVersion)
}

func TestSaveBeforeInitializationIsIgnored(t *testing.T) {
	h := newHarness(t, newFakeStore(), Options{})

	h.session.Save("too early")
	assert.Equal(t, 0, h.clock.Fire())
	assert.Empty(t, h.store.upsertCalls())
	assert.Equal(t, "", h.session.Content())
}

func TestReadOnlySessionNeverSaves(t *testing.T) {
	store := newFakeStore()
	store.put("alice", "home", "a", 1)
	h := newHarness(t, store, Options{ReadOnly: true})
	require.NoError(t, h.session.Load(context.Background()))

	h.session.Save("b")
	h.session.Flush()
	assert.Equal(t, 0, h.clock.Fire())
	assert.Empty(t, store.upsertCalls())
}

func TestSavesWithinWindowCoalesce(t *testing.T) {
	h := loadedHarness(t, "a", 1)

	h.session.Save("b")
	h.session.Save("c")
	assert.Equal(t, StateDebouncing, h.session.State())

	require.Equal(t, 1, h.clock.Fire())
	<-h.store.started

	calls := h.store.upsertCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c", calls[0].Content)
	assert.Equal(t, int64(1), *calls[0].ExpectedVersion)

	snap := h.session.Snapshot()
	assert.Equal(t, int64(2), snap.LastSaveVersion)
	assert.Equal(t, contenthash.Sum("c"), snap.LastSaveHash)
	assert.False(t, snap.IsSaving)
	assert.Equal(t, StateIdle, h.session.State())
}

func TestUnchangedContentSkipsUpsert(t *testing.T) {
	h := loadedHarness(t, "a", 1)

	h.session.Save("a")
	require.Equal(t, 1, h.clock.Fire())
	assert.Empty(t, h.store.upsertCalls())
}

func TestOneUpsertInFlightWithPendingFollowUp(t *testing.T) {
	h := loadedHarness(t, "a", 1)
	gate := make(chan struct{})
	h.store.gate = gate

	h.session.Save("b")
	first, done := h.fireAsync(t)
	assert.Equal(t, "b", first.Content)
	assert.Equal(t, StateSaving, h.session.State())

	h.session.Save("c")
	assert.Equal(t, StateSavingWithPending, h.session.State())
	assert.Equal(t, 0, h.clock.Fire(), "no timer is armed while saving")

	close(gate)
	waitDone(t, done)

	calls := h.store.upsertCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "c", calls[1].Content)
	assert.Equal(t, int64(2), *calls[1].ExpectedVersion)
	assert.Equal(t, int64(3), h.session.Snapshot().LastSaveVersion)
	assert.Equal(t, StateIdle, h.session.State())
}

func TestOwnEchoIsNotApplied(t *testing.T) {
	h := loadedHarness(t, "a", 1)

	h.session.Save("b")
	h.clock.Fire()
	<-h.store.started

	h.session.Receive(&Record{Key: "home", Content: "b", Version: 2, ContentHash: contenthash.Sum("b")})

	assert.Equal(t, []string{"a"}, h.surface.Calls())
	assert.Equal(t, "b", h.session.Content())
	assert.Equal(t, int64(2), h.session.Snapshot().LastSaveVersion)
}

func TestExternalChangeOverwritesAndCancelsDebounce(t *testing.T) {
	h := loadedHarness(t, "a", 1)

	h.session.Save("local draft")
	h.session.Receive(&Record{Key: "home", Content: "remote", Version: 2, ContentHash: contenthash.Sum("remote")})

	assert.Equal(t, []string{"a", "remote"}, h.surface.Calls())
	assert.Equal(t, "remote", h.session.Content())
	assert.Equal(t, 0, h.clock.Fire())
	assert.Empty(t, h.store.upsertCalls())

	snap := h.session.Snapshot()
	assert.Equal(t, int64(2), snap.LastSaveVersion)
	assert.Equal(t, contenthash.Sum("remote"), snap.LastSaveHash)
}

func TestWhitespaceOnlyDifferenceIsAbsorbed(t *testing.T) {
	h := loadedHarness(t, "<p>a</p>", 1)

	remote := "<p>a</p>\n  "
	h.session.Receive(&Record{Key: "home", Content: remote, Version: 2, ContentHash: contenthash.Sum(remote)})

	assert.Equal(t, []string{"<p>a</p>"}, h.surface.Calls())
	assert.Equal(t, "<p>a</p>", h.session.Content())
	snap := h.session.Snapshot()
	assert.Equal(t, int64(2), snap.LastSaveVersion)
	assert.Equal(t, contenthash.Sum(remote), snap.LastSaveHash)
}

func TestStaleRecordIsIgnored(t *testing.T) {
	h := loadedHarness(t, "a", 3)

	h.session.Receive(&Record{Key: "home", Content: "old", Version: 2, ContentHash: contenthash.Sum("old")})

	assert.Equal(t, "a", h.session.Content())
	assert.Equal(t, int64(3), h.session.Snapshot().LastSaveVersion)
}

func TestRecordDuringSaveIsReplayedAfterward(t *testing.T) {
	h := loadedHarness(t, "a", 1)
	gate := make(chan struct{})
	h.store.gate = gate

	h.session.Save("b")
	_, done := h.fireAsync(t)

	h.session.Receive(&Record{Key: "home", Content: "theirs", Version: 5, ContentHash: contenthash.Sum("theirs")})
	assert.Equal(t, []string{"a"}, h.surface.Calls())
	assert.Equal(t, "b", h.session.Content())

	close(gate)
	waitDone(t, done)

	assert.Equal(t, []string{"a", "theirs"}, h.surface.Calls())
	assert.Equal(t, int64(5), h.session.Snapshot().LastSaveVersion)
}

func TestConflictRefetchesWithoutReporting(t *testing.T) {
	h := loadedHarness(t, "a", 1)
	h.store.put("alice", "home", "server", 2)

	h.session.Save("mine")
	h.clock.Fire()
	<-h.store.started

	assert.Empty(t, h.errors())
	assert.Equal(t, "server", h.session.Content())
	assert.Equal(t, []string{"a", "server"}, h.surface.Calls())
	snap := h.session.Snapshot()
	assert.Equal(t, int64(2), snap.LastSaveVersion)
	assert.False(t, snap.IsSaving)
	assert.False(t, snap.PendingSave)
}

func TestConflictWithRevertedContentRequeuesLocalEdit(t *testing.T) {
	h := loadedHarness(t, "A", 1)
	// another writer went A -> B -> A
	h.store.put("alice", "home", "A", 3)

	h.session.Save("mine")
	h.clock.Fire()
	<-h.store.started

	assert.Empty(t, h.errors())
	assert.Equal(t, "mine", h.session.Content())
	assert.Equal(t, int64(3), h.session.Snapshot().LastSaveVersion)
	assert.Equal(t, StateDebouncing, h.session.State())

	require.Equal(t, 1, h.clock.Fire())
	req := <-h.store.started
	assert.Equal(t, "mine", req.Content)
	require.NotNil(t, req.ExpectedVersion)
	assert.Equal(t, int64(3), *req.ExpectedVersion)

	stored, err := h.store.Get(context.Background(), "alice", "home")
	require.NoError(t, err)
	assert.Equal(t, "mine", stored.Content)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, int64(4), h.session.Snapshot().LastSaveVersion)
}

func TestTransientFailureKeepsBookkeeping(t *testing.T) {
	h := loadedHarness(t, "a", 1)
	boom := errors.New("boom")
	h.store.failNext = boom

	h.session.Save("b")
	h.clock.Fire()
	<-h.store.started

	errs := h.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	snap := h.session.Snapshot()
	assert.Equal(t, int64(1), snap.LastSaveVersion)
	assert.Equal(t, contenthash.Sum("a"), snap.LastSaveHash)
	assert.False(t, snap.IsSaving)
	assert.Equal(t, "b", h.session.Content())

	h.session.Flush()
	<-h.store.started
	assert.Equal(t, int64(2), h.session.Snapshot().LastSaveVersion)
	assert.Len(t, h.errors(), 1)
}

func TestOpenDiscardsInFlightResult(t *testing.T) {
	h := loadedHarness(t, "a", 1)
	gate := make(chan struct{})
	h.store.gate = gate

	h.session.Save("b")
	_, done := h.fireAsync(t)

	h.session.Open(Target{SiteSlug: "alice", Key: "about"})
	close(gate)
	waitDone(t, done)

	assert.False(t, h.session.Initialized())
	assert.Equal(t, SaveState{}, h.session.Snapshot())
	assert.Equal(t, Target{SiteSlug: "alice", Key: "about"}, h.session.Target())

	h.session.Save("ignored")
	assert.Equal(t, 0, h.clock.Fire())
}

func TestCloseStopsDebounce(t *testing.T) {
	h := loadedHarness(t, "a", 1)

	h.session.Save("b")
	h.session.Close()
	assert.Equal(t, 0, h.clock.Fire())
	assert.Empty(t, h.store.upsertCalls())
}

type watchCall struct {
	slug, key string
	ch        chan *Record
}

type fakeFeed struct {
	calls chan watchCall
}

func (f *fakeFeed) Watch(_ context.Context, slug, key string) (<-chan *Record, error) {
	ch := make(chan *Record, 4)
	f.calls <- watchCall{slug: slug, key: key, ch: ch}
	return ch, nil
}

func nextWatch(t *testing.T, f *fakeFeed) watchCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription")
	}
	return watchCall{}
}

func TestWatchFeedsRecordsAndFollowsRetarget(t *testing.T) {
	h := newHarness(t, newFakeStore(), Options{ReconnectDelay: 10 * time.Millisecond})
	feed := &fakeFeed{calls: make(chan watchCall, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- h.session.Watch(ctx, feed) }()

	first := nextWatch(t, feed)
	assert.Equal(t, "home", first.key)
	first.ch <- &Record{Key: "home", Content: "hi", Version: 1, ContentHash: contenthash.Sum("hi")}

	require.Eventually(t, func() bool {
		return h.session.Connected() && h.session.Content() == "hi"
	}, 2*time.Second, 5*time.Millisecond)

	h.session.Open(Target{SiteSlug: "alice", Key: "about"})
	second := nextWatch(t, feed)
	assert.Equal(t, "about", second.key)
	second.ch <- nil

	require.Eventually(t, h.session.Initialized, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "", h.session.Content())

	close(second.ch)
	third := nextWatch(t, feed)
	assert.Equal(t, "about", third.key)

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.False(t, h.session.Connected())
}
