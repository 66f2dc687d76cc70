package container

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildFixture(entries []struct {
	name string
	body []byte
}) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, uint32(len(e.name)))
		buf.WriteString(e.name)
		binary.Write(&buf, binary.LittleEndian, uint64(len(e.body)))
		buf.Write(e.body)
	}
	return buf.Bytes()
}

func writeFixtureFile(t *testing.T, prefix string, body []byte) (path string, offset, size int64) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "bundle.bin")
	full := append([]byte(prefix), body...)
	require.NoError(t, os.WriteFile(path, full, 0o600))
	return path, int64(len(prefix)), int64(len(body))
}

func TestNextStreamYieldsNamesInOrder(t *testing.T) {
	fixture := buildFixture([]struct {
		name string
		body []byte
	}{
		{"payload1.msi", []byte("hello")},
		{"payload2.cab", []byte("world!!")},
	})
	path, offset, size := writeFixtureFile(t, "PREFIXJUNK", fixture)

	r, err := Open(path, offset, size)
	require.NoError(t, err)
	defer r.Close()

	name, err := r.NextStream()
	require.NoError(t, err)
	require.Equal(t, "payload1.msi", name)

	body, err := r.StreamToBuffer()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), body)

	name, err = r.NextStream()
	require.NoError(t, err)
	require.Equal(t, "payload2.cab", name)

	require.NoError(t, r.SkipStream())

	_, err = r.NextStream()
	require.ErrorIs(t, err, ErrEnd)
}

func TestStreamToFileWritesBody(t *testing.T) {
	fixture := buildFixture([]struct {
		name string
		body []byte
	}{
		{"a.bin", []byte("binary-data")},
	})
	path, offset, size := writeFixtureFile(t, "", fixture)

	r, err := Open(path, offset, size)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextStream()
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, r.StreamToFile(outPath))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, []byte("binary-data"), got)
}

func TestCannotAdvanceWithBodyPending(t *testing.T) {
	fixture := buildFixture([]struct {
		name string
		body []byte
	}{
		{"a.bin", []byte("x")},
		{"b.bin", []byte("y")},
	})
	path, offset, size := writeFixtureFile(t, "", fixture)

	r, err := Open(path, offset, size)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextStream()
	require.NoError(t, err)

	_, err = r.NextStream()
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	path, offset, size := writeFixtureFile(t, "", buildFixture(nil))
	r, err := Open(path, offset, size)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}
