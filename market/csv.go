package market

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// IngestStats accounts for rows a loader had to drop. The run can proceed
// with drops, but callers should log them.
type IngestStats struct {
	Rows       int
	Duplicates int
	BadLines   int
}

// LoadSeriesCSV reads "time,open,high,low,close,volume" rows. Time is
// RFC3339 or unix seconds. Duplicate timestamps keep the first occurrence,
// unparseable lines are counted and skipped, and the result is sorted so a
// partially unsorted file still yields a valid series.
func LoadSeriesCSV(symbol, path string) (*Series, IngestStats, error) {
	var stats IngestStats

	f, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	seen := make(map[int64]bool)
	var bars []Bar

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(strings.ToLower(line), "time,") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 6 {
			stats.BadLines++
			continue
		}

		ts, err := parseBarTime(parts[0])
		if err != nil {
			stats.BadLines++
			continue
		}
		if seen[ts.UnixNano()] {
			// keep-first policy
			stats.Duplicates++
			continue
		}

		vals := make([]float64, 5)
		ok := true
		for i := 1; i < 6; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i-1] = v
		}
		if !ok {
			stats.BadLines++
			continue
		}

		seen[ts.UnixNano()] = true
		bars = append(bars, Bar{
			Time:   ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
		stats.Rows++
	}
	if err := sc.Err(); err != nil {
		return nil, stats, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bars) == 0 {
		return nil, stats, fmt.Errorf("no valid rows in %s", path)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	s, err := NewSeries(symbol, bars)
	if err != nil {
		return nil, stats, err
	}
	return s, stats, nil
}

func parseBarTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
