package checkpoint

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/permasave/permasave/pkg/permasave/observability"
	"github.com/permasave/permasave/pkg/permasave/store"
)

// defaultFetchConcurrency bounds the parallel body fetches during List.
const defaultFetchConcurrency = 4

// Selector chooses among multiple checkpoints during Load.
// A nil (or zero-valued) selector picks the most recent checkpoint.
type Selector struct {
	// Timestamp selects the checkpoint whose CreatedAt equals it exactly.
	// Must be positive when set.
	Timestamp int64

	// Checkpoint selects by a reference previously returned from List,
	// matching on its CreatedAt. Takes precedence over Timestamp when both
	// are set.
	Checkpoint *Checkpoint
}

// Manager implements the public checkpoint operations against a ContentStore.
// It holds no mutable state between calls; a single Manager may be shared
// across concurrent operations.
type Manager struct {
	store      store.ContentStore
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	now        func() time.Time
	fetchLimit int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics observability.MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTracing sets the span manager.
func WithTracing(spans observability.SpanManager) Option {
	return func(m *Manager) { m.spans = spans }
}

// WithClock overrides the save-time clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithFetchConcurrency bounds the parallel body fetches during List.
// Values below 1 fall back to sequential fetching.
func WithFetchConcurrency(n int) Option {
	return func(m *Manager) {
		if n < 1 {
			n = 1
		}
		m.fetchLimit = n
	}
}

// NewManager creates a Manager backed by the given content store.
func NewManager(cs store.ContentStore, opts ...Option) *Manager {
	m := &Manager{
		store:      cs,
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
		now:        time.Now,
		fetchLimit: defaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save validates the inputs, stamps the snapshot with the current time, and
// uploads it as a new immutable object. No prior object is touched, and a
// failed upload is never retried here; retry policy belongs to the caller or
// the store transport.
func (m *Manager) Save(ctx context.Context, owner, application string, payload map[string]any) error {
	if err := validateIdentity(owner, application); err != nil {
		return err
	}
	if payload == nil {
		return &ValidationError{Field: "payload", Message: "must be a non-nil object"}
	}

	logger := observability.EnrichLogger(m.logger, uuid.NewString(), owner, application)
	ctx, span := m.spans.StartOperationSpan(ctx, "save", owner, application)
	done := observability.TimedOperation()

	cp := &Checkpoint{
		Owner:         owner,
		Application:   application,
		CreatedAt:     m.now().UnixMilli(),
		Payload:       payload,
		SchemaVersion: SchemaVersion,
	}

	body, err := cp.Marshal()
	if err != nil {
		m.spans.EndSpanWithError(span, err)
		return &ValidationError{Field: "payload", Message: "not JSON-serializable: " + err.Error()}
	}

	id, err := m.store.Upload(ctx, body, store.Tags{
		store.TagOwner:       owner,
		store.TagApplication: application,
		store.TagCreatedAt:   strconv.FormatInt(cp.CreatedAt, 10),
		store.TagKind:        store.KindCheckpoint,
	})
	m.metrics.RecordSave(ctx, application, int64(len(body)), done(), err)
	if err != nil {
		m.spans.EndSpanWithError(span, err)
		observability.LogSaveError(logger, err)
		return &Error{Code: CodeUpload, Op: "save", Err: err}
	}

	m.spans.EndSpanWithError(span, nil)
	observability.LogSave(logger, id, cp.CreatedAt, len(body))
	return nil
}

// Load returns the payload of one checkpoint, chosen by sel, or nil when no
// checkpoint matches. Absence is a normal outcome, not an error: both "no
// checkpoints at all" and "no checkpoint with that timestamp" yield (nil, nil).
func (m *Manager) Load(ctx context.Context, owner, application string, sel *Selector) (map[string]any, error) {
	if err := validateIdentity(owner, application); err != nil {
		return nil, err
	}
	if sel != nil && sel.Checkpoint == nil && sel.Timestamp < 0 {
		return nil, &ValidationError{Field: "timestamp", Message: "must be a positive integer"}
	}

	logger := observability.EnrichLogger(m.logger, uuid.NewString(), owner, application)
	ctx, span := m.spans.StartOperationSpan(ctx, "load", owner, application)
	done := observability.TimedOperation()

	entries, err := m.store.Query(ctx, m.filter(owner, application))
	if err != nil {
		m.metrics.RecordLoad(ctx, application, false, done(), err)
		m.spans.EndSpanWithError(span, err)
		return nil, &Error{Code: CodeQuery, Op: "load", Err: err}
	}

	target, ok := m.selectEntry(logger, entries, sel)
	if !ok {
		m.metrics.RecordLoad(ctx, application, false, done(), nil)
		m.spans.EndSpanWithError(span, nil)
		observability.LogLoadMiss(logger)
		return nil, nil
	}

	cp, err := m.fetchCheckpoint(ctx, target)
	m.metrics.RecordLoad(ctx, application, err == nil, done(), err)
	if err != nil {
		m.spans.EndSpanWithError(span, err)
		return nil, &Error{Code: CodeFetch, Op: "load", Err: err}
	}

	m.spans.EndSpanWithError(span, nil)
	observability.LogLoad(logger, target.ID, cp.CreatedAt)
	return cp.Payload, nil
}

// List returns every checkpoint for the pair, newest first. A checkpoint
// whose body cannot be fetched is skipped with a warning rather than failing
// the whole listing; one bad object must not make the history unreadable.
func (m *Manager) List(ctx context.Context, owner, application string) ([]Checkpoint, error) {
	if err := validateIdentity(owner, application); err != nil {
		return nil, err
	}

	logger := observability.EnrichLogger(m.logger, uuid.NewString(), owner, application)
	ctx, span := m.spans.StartOperationSpan(ctx, "list", owner, application)
	done := observability.TimedOperation()

	entries, err := m.store.Query(ctx, m.filter(owner, application))
	if err != nil {
		m.metrics.RecordList(ctx, application, 0, 0, done(), err)
		m.spans.EndSpanWithError(span, err)
		return nil, &Error{Code: CodeQuery, Op: "list", Err: err}
	}

	var (
		mu          sync.Mutex
		checkpoints = make([]Checkpoint, 0, len(entries))
		skipped     int
	)

	// Fan out the body fetches; failures are recorded, never propagated.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.fetchLimit)
	for _, entry := range entries {
		g.Go(func() error {
			cp, err := m.fetchCheckpoint(gctx, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skipped++
				observability.LogSkippedFetch(logger, entry.ID, err)
				return nil
			}
			checkpoints = append(checkpoints, *cp)
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	// Order is enforced here, not by fetch completion. Equal timestamps are
	// possible for rapid saves; the content identifier breaks the tie so the
	// listing is deterministic.
	sort.Slice(checkpoints, func(i, j int) bool {
		if checkpoints[i].CreatedAt != checkpoints[j].CreatedAt {
			return checkpoints[i].CreatedAt > checkpoints[j].CreatedAt
		}
		return checkpoints[i].ContentID > checkpoints[j].ContentID
	})

	m.metrics.RecordList(ctx, application, len(checkpoints), skipped, done(), nil)
	m.spans.EndSpanWithError(span, nil)
	observability.LogList(logger, len(checkpoints), skipped)
	return checkpoints, nil
}

// filter is the tag filter shared by Load and List.
func (m *Manager) filter(owner, application string) store.Tags {
	return store.Tags{
		store.TagOwner:       owner,
		store.TagApplication: application,
		store.TagKind:        store.KindCheckpoint,
	}
}

// selectEntry applies the selection policy to the query result.
// An explicit checkpoint reference wins over an explicit timestamp; with
// neither, the entry with the greatest createdAt tag is chosen. Equal
// timestamps are broken by content identifier, the same rule List orders by,
// so the latest checkpoint is always List's first.
func (m *Manager) selectEntry(logger *slog.Logger, entries []store.Entry, sel *Selector) (store.Entry, bool) {
	if len(entries) == 0 {
		return store.Entry{}, false
	}

	if sel != nil {
		if sel.Checkpoint != nil {
			return matchCreatedAt(entries, sel.Checkpoint.CreatedAt)
		}
		if sel.Timestamp != 0 {
			return matchCreatedAt(entries, sel.Timestamp)
		}
	}

	var (
		best   store.Entry
		bestAt int64 = -1
	)
	for _, entry := range entries {
		at, err := strconv.ParseInt(entry.Tags[store.TagCreatedAt], 10, 64)
		if err != nil {
			// Tagged as a checkpoint but with a mangled timestamp;
			// not selectable.
			observability.LogSkippedFetch(logger, entry.ID, err)
			continue
		}
		if at > bestAt || (at == bestAt && entry.ID > best.ID) {
			best, bestAt = entry, at
		}
	}
	return best, bestAt >= 0
}

// matchCreatedAt finds the entry whose createdAt tag equals want exactly.
func matchCreatedAt(entries []store.Entry, want int64) (store.Entry, bool) {
	key := strconv.FormatInt(want, 10)
	for _, entry := range entries {
		if entry.Tags[store.TagCreatedAt] == key {
			return entry, true
		}
	}
	return store.Entry{}, false
}

// fetchCheckpoint retrieves and decodes one stored object.
func (m *Manager) fetchCheckpoint(ctx context.Context, entry store.Entry) (*Checkpoint, error) {
	body, err := m.store.Fetch(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	cp, err := Unmarshal(body)
	if err != nil {
		return nil, err
	}
	cp.ContentID = entry.ID
	return cp, nil
}
