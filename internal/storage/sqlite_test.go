package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gait_feedback/internal/gaitdb"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "gait.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(vals ...float64) gaitdb.Snapshot {
	snap := gaitdb.Snapshot{Params: gaitdb.Params{ResamplePoints: 3, DecayRate: 0.03}, Rejected: 2}
	for i, v := range vals {
		snap.Features = append(snap.Features, gaitdb.Feature{
			Vector:    []float64{v, v + 0.5, -v},
			Timestamp: float64(i) + 0.25,
		})
	}
	return snap
}

func TestSaveAndLoadSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC)
	rec := SessionRecord{ID: "s-1", Patient: "p-7", StartedAt: started, Snapshot: snapshot(1, 2.125, 3)}
	require.NoError(t, s.SaveSession(ctx, rec))

	got, err := s.LoadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "p-7", got.Patient)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, rec.Snapshot, got.Snapshot)
}

func TestSaveSessionReplacesExemplars(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	rec := SessionRecord{ID: "s-1", StartedAt: time.Now(), Snapshot: snapshot(1, 2, 3)}
	require.NoError(t, s.SaveSession(ctx, rec))

	rec.Snapshot = snapshot(9)
	require.NoError(t, s.SaveSession(ctx, rec))

	got, err := s.LoadSession(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, got.Snapshot.Features, 1)
	assert.Equal(t, []float64{9, 9.5, -9}, got.Snapshot.Features[0].Vector)
}

func TestLatestSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "old", Patient: "p", StartedAt: base, Snapshot: snapshot(1)}))
	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "new", Patient: "p", StartedAt: base.Add(time.Hour), Snapshot: snapshot(2)}))
	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "other", Patient: "q", StartedAt: base.Add(2 * time.Hour), Snapshot: snapshot(3)}))

	got, err := s.LatestSession(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)

	_, err = s.LatestSession(ctx, "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLoadMissingSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.LoadSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Error(t, s.SaveSession(context.Background(), SessionRecord{}))
}

func TestRestoreFromStore(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "s", StartedAt: time.Now(), Snapshot: snapshot(1, 4)}))

	rec, err := s.LoadSession(ctx, "s")
	require.NoError(t, err)
	db, err := gaitdb.New(rec.Snapshot.Params, nil)
	require.NoError(t, err)
	require.NoError(t, db.Restore(rec.Snapshot))
	assert.Equal(t, 2, db.Len())
	assert.Equal(t, 2, db.Rejected())
}

func TestDecodeVectorRejectsBadBlob(t *testing.T) {
	t.Parallel()

	_, err := decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)

	v, err := decodeVector(encodeVector([]float64{1.5, -2}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, v)
}
