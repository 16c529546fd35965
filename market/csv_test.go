package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeriesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	data := `time,open,high,low,close,volume
2024-01-01T00:00:00Z,100,101,99,100.5,1000
2024-01-02T00:00:00Z,100.5,102,100,101.5,1100
2024-01-02T00:00:00Z,9,9,9,9,9
not-a-row
2024-01-03T00:00:00Z,101.5,103,101,102.5,900
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s, stats, err := LoadSeriesCSV("SPY", path)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.BadLines)

	// keep-first: the duplicate's close must be the original 101.5
	b, ok := s.AsOf(day(1))
	require.True(t, ok)
	assert.Equal(t, 101.5, b.Close)
}

func TestLoadSeriesCSV_UnixTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	data := "1704067200,50,51,49,50.5,10\n1704153600,50.5,52,50,51.5,11\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s, stats, err := LoadSeriesCSV("BTC", path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, stats.BadLines)
}

func TestLoadSeriesCSV_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,open,high,low,close,volume\n"), 0o644))

	_, _, err := LoadSeriesCSV("SPY", path)
	assert.Error(t, err)
}
