package checkpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permasave/permasave/pkg/permasave/checkpoint"
	"github.com/permasave/permasave/pkg/permasave/store"
)

const (
	testOwner = "0x1111111111111111111111111111111111111111"
	testApp   = "demo"
)

// testClock hands out strictly increasing millisecond timestamps.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// newTestManager wires a manager to a fresh in-memory store with a
// deterministic clock.
func newTestManager(t *testing.T) (*checkpoint.Manager, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	t.Cleanup(func() { mem.Close() })
	mgr := checkpoint.NewManager(mem, checkpoint.WithClock(newTestClock().Now))
	return mgr, mem
}

func TestManager_RoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	payload := map[string]any{
		"level": float64(3),
		"inventory": map[string]any{
			"sword":   true,
			"potions": float64(2),
		},
	}
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, payload))

	loaded, err := mgr.Load(ctx, testOwner, testApp, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)
}

func TestManager_LatestWins(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(1)}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(2)}))

	loaded, err := mgr.Load(ctx, testOwner, testApp, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"level": float64(2)}, loaded)
}

func TestManager_LatestAgreesWithListOnEqualTimestamps(t *testing.T) {
	// A frozen clock lands every save in the same millisecond, so the
	// content-identifier tiebreak is the only thing ordering them.
	frozen := time.UnixMilli(1_700_000_000_000)
	mem := store.NewMemoryStore()
	defer mem.Close()
	mgr := checkpoint.NewManager(mem, checkpoint.WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"save": "A"}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"save": "B"}))

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, all[0].CreatedAt, all[1].CreatedAt)
	assert.Greater(t, all[0].ContentID, all[1].ContentID)

	// The selection must be deterministic across calls and identical to
	// List's head, regardless of query result order.
	for i := 0; i < 20; i++ {
		loaded, err := mgr.Load(ctx, testOwner, testApp, nil)
		require.NoError(t, err)
		assert.Equal(t, all[0].Payload, loaded, "iteration %d", i)
	}
}

func TestManager_Load_ExactTimestamp(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(1)}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(2)}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(3)}))

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// all[2] is the oldest
	loaded, err := mgr.Load(ctx, testOwner, testApp, &checkpoint.Selector{Timestamp: all[2].CreatedAt})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"level": float64(1)}, loaded)
}

func TestManager_Load_UnmatchedTimestamp(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(1)}))

	loaded, err := mgr.Load(ctx, testOwner, testApp, &checkpoint.Selector{Timestamp: 12345})
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestManager_Load_ByReference(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(1)}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(2)}))

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 2)

	oldest := all[1]
	loaded, err := mgr.Load(ctx, testOwner, testApp, &checkpoint.Selector{Checkpoint: &oldest})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"level": float64(1)}, loaded)
}

func TestManager_Load_ReferenceWinsOverTimestamp(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(1)}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(2)}))

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Contradictory selector: the explicit reference points at the oldest,
	// the timestamp at the newest. The reference must win.
	oldest := all[1]
	loaded, err := mgr.Load(ctx, testOwner, testApp, &checkpoint.Selector{
		Timestamp:  all[0].CreatedAt,
		Checkpoint: &oldest,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"level": float64(1)}, loaded)
}

func TestManager_List_Ordering(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"save": float64(i)}))
	}

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, map[string]any{"save": float64(3)}, all[0].Payload)
	assert.Equal(t, map[string]any{"save": float64(1)}, all[2].Payload)
	for i := 0; i < len(all)-1; i++ {
		assert.Greater(t, all[i].CreatedAt, all[i+1].CreatedAt)
	}
	for _, cp := range all {
		assert.Equal(t, testOwner, cp.Owner)
		assert.Equal(t, testApp, cp.Application)
		assert.Equal(t, checkpoint.SchemaVersion, cp.SchemaVersion)
		assert.NotEmpty(t, cp.ContentID)
	}
}

func TestManager_EmptyState(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	loaded, err := mgr.Load(ctx, testOwner, testApp, nil)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestManager_List_PartialFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	defer mem.Close()
	flaky := &fetchFailStore{ContentStore: mem}
	mgr := checkpoint.NewManager(flaky, checkpoint.WithClock(newTestClock().Now))
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"save": float64(1)}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"save": float64(2)}))
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"save": float64(3)}))

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 3)

	flaky.failID = all[1].ContentID

	remaining, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for _, cp := range remaining {
		assert.NotEqual(t, flaky.failID, cp.ContentID)
	}
}

func TestManager_ValidationGate(t *testing.T) {
	spy := &spyStore{}
	mgr := checkpoint.NewManager(spy)
	ctx := context.Background()

	cases := []struct {
		name  string
		call  func() error
		field string
	}{
		{
			name:  "save bad owner",
			call:  func() error { return mgr.Save(ctx, "0xdeadbeef", testApp, map[string]any{}) },
			field: "owner",
		},
		{
			name:  "save empty application",
			call:  func() error { return mgr.Save(ctx, testOwner, "", map[string]any{}) },
			field: "application",
		},
		{
			name:  "save nil payload",
			call:  func() error { return mgr.Save(ctx, testOwner, testApp, nil) },
			field: "payload",
		},
		{
			name: "load bad owner",
			call: func() error {
				_, err := mgr.Load(ctx, "not-an-address", testApp, nil)
				return err
			},
			field: "owner",
		},
		{
			name: "load negative timestamp",
			call: func() error {
				_, err := mgr.Load(ctx, testOwner, testApp, &checkpoint.Selector{Timestamp: -1})
				return err
			},
			field: "timestamp",
		},
		{
			name: "list bad owner",
			call: func() error {
				_, err := mgr.List(ctx, "0x12345", testApp)
				return err
			},
			field: "owner",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)

			var ve *checkpoint.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, checkpoint.CodeValidation, checkpoint.ErrCode(err))

			// The gate is local: no store call may have happened.
			assert.Zero(t, spy.calls(), "store was called despite invalid input")
		})
	}
}

func TestManager_Save_UploadError(t *testing.T) {
	failing := &failingStore{err: errors.New("quota exceeded")}
	mgr := checkpoint.NewManager(failing)

	err := mgr.Save(context.Background(), testOwner, testApp, map[string]any{"level": float64(1)})
	require.Error(t, err)
	assert.Equal(t, checkpoint.CodeUpload, checkpoint.ErrCode(err))
	assert.ErrorIs(t, err, failing.err)
}

func TestManager_QueryError(t *testing.T) {
	failing := &failingStore{err: errors.New("index unavailable")}
	mgr := checkpoint.NewManager(failing)
	ctx := context.Background()

	_, err := mgr.Load(ctx, testOwner, testApp, nil)
	require.Error(t, err)
	assert.Equal(t, checkpoint.CodeQuery, checkpoint.ErrCode(err))

	_, err = mgr.List(ctx, testOwner, testApp)
	require.Error(t, err)
	assert.Equal(t, checkpoint.CodeQuery, checkpoint.ErrCode(err))
}

func TestManager_Load_FetchErrorIsNotRecovered(t *testing.T) {
	mem := store.NewMemoryStore()
	defer mem.Close()
	flaky := &fetchFailStore{ContentStore: mem}
	mgr := checkpoint.NewManager(flaky, checkpoint.WithClock(newTestClock().Now))
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"level": float64(1)}))

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 1)
	flaky.failID = all[0].ContentID

	_, err = mgr.Load(ctx, testOwner, testApp, nil)
	require.Error(t, err)
	assert.Equal(t, checkpoint.CodeFetch, checkpoint.ErrCode(err))
}

func TestManager_IsolationBetweenPairs(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	otherOwner := "0x2222222222222222222222222222222222222222"
	require.NoError(t, mgr.Save(ctx, testOwner, testApp, map[string]any{"who": "first"}))
	require.NoError(t, mgr.Save(ctx, otherOwner, testApp, map[string]any{"who": "second"}))
	require.NoError(t, mgr.Save(ctx, testOwner, "other-game", map[string]any{"who": "third"}))

	all, err := mgr.List(ctx, testOwner, testApp)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, map[string]any{"who": "first"}, all[0].Payload)
}

// spyStore counts calls without doing anything.
type spyStore struct {
	uploads int
	queries int
	fetches int
}

func (s *spyStore) Upload(context.Context, []byte, store.Tags) (string, error) {
	s.uploads++
	return "spy", nil
}

func (s *spyStore) Query(context.Context, store.Tags) ([]store.Entry, error) {
	s.queries++
	return nil, nil
}

func (s *spyStore) Fetch(context.Context, string) ([]byte, error) {
	s.fetches++
	return nil, store.ErrNotFound
}

func (s *spyStore) calls() int {
	return s.uploads + s.queries + s.fetches
}

// failingStore rejects every operation with a fixed error.
type failingStore struct {
	err error
}

func (s *failingStore) Upload(context.Context, []byte, store.Tags) (string, error) {
	return "", s.err
}

func (s *failingStore) Query(context.Context, store.Tags) ([]store.Entry, error) {
	return nil, s.err
}

func (s *failingStore) Fetch(context.Context, string) ([]byte, error) {
	return nil, s.err
}

// fetchFailStore delegates to a real store but fails fetches for one ID.
type fetchFailStore struct {
	store.ContentStore
	failID string
}

func (s *fetchFailStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	if id == s.failID {
		return nil, errors.New("object unavailable")
	}
	return s.ContentStore.Fetch(ctx, id)
}
