package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct{ content string }

func (f fakeStore) SnapshotInto(destPath string) error {
	return os.WriteFile(destPath, []byte(f.content), 0644)
}

func TestSnapshotUploadsOneObjectPerDay(t *testing.T) {
	var puts int32
	s3srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			atomic.AddInt32(&puts, 1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s3srv.Close)

	dataDir := t.TempDir()
	a, err := New(context.Background(), s3srv.URL, "auto", "key-id", "secret", "test-bucket", dataDir, zerolog.Nop())
	require.NoError(t, err)

	err = a.Snapshot(context.Background(), fakeStore{content: "fake sqlite bytes"})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&puts), int32(1))
	_, err = os.Stat(filepath.Join(dataDir, "archive-staging"))
	assert.True(t, os.IsNotExist(err), "staging directory should be cleaned up")
}

func TestNewRejectsEmptyBucket(t *testing.T) {
	_, err := New(context.Background(), "", "auto", "key-id", "secret", "", t.TempDir(), zerolog.Nop())
	assert.Error(t, err)
}

func TestParseSnapshotDate(t *testing.T) {
	ts, ok := parseSnapshotDate("macro-stress-snapshot-2026-07-30.db.gz")
	require.True(t, ok)
	assert.Equal(t, "2026-07-30", ts.Format("2006-01-02"))

	_, ok = parseSnapshotDate("not-a-snapshot-key.txt")
	assert.False(t, ok)
}

func TestCompressAndChecksumRoundTrips(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "snapshot.db")
	require.NoError(t, os.WriteFile(srcPath, []byte("consistent snapshot bytes"), 0644))

	destPath := filepath.Join(dir, "snapshot.db.gz")
	checksum, err := compressAndChecksum(srcPath, destPath)
	require.NoError(t, err)
	assert.Contains(t, checksum, "sha256:")

	info, err := os.Stat(destPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
