package auditledger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLSinkAppendsToSingleDailyFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := newJSONLSink(dir)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(map[string]string{"uid": "act_1"}))
	require.NoError(t, sink.Append(map[string]string{"uid": "act_2"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "act_1", first["uid"])
}

func TestJSONLSinkCreatesDirIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "audit")
	sink, err := newJSONLSink(dir)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(map[string]string{"uid": "act_1"}))

	_, err = os.Stat(dir)
	require.NoError(t, err)
}
