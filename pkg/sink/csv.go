package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

// CountsCSVHeader is the first row of every counts file.
func CountsCSVHeader() []string {
	row := []string{"timestep"}
	for _, s := range disease.AllStates {
		row = append(row, s.String())
	}
	return row
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// CountsCSV appends one row of compartment counts per timestep to
// <dir>/seed<N>/counts.csv. Files stay open until FinishSeed.
type CountsCSV struct {
	dir   string
	mu    sync.Mutex
	files map[int64]*csvFile
}

// NewCountsCSV returns a counts sink rooted at dir.
func NewCountsCSV(dir string) *CountsCSV {
	return &CountsCSV{dir: dir, files: make(map[int64]*csvFile)}
}

func (c *CountsCSV) Name() string { return "csv" }

// CountsCSVPath returns the counts file of seed.
func CountsCSVPath(dir string, seed int64) string {
	return filepath.Join(seedDir(dir, seed), "counts.csv")
}

// Emit appends rec.Counts.
func (c *CountsCSV) Emit(_ context.Context, seed int64, t int, rec snapshot.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cf, err := c.open(seed)
	if err != nil {
		return simerr.Export("csv").Seed(seed).Timestep(t).Wrap(err)
	}
	if err := cf.w.Write(countsRow(t, rec.Counts)); err != nil {
		return simerr.Export("csv").Seed(seed).Timestep(t).Wrap(err)
	}
	cf.w.Flush()
	if err := cf.w.Error(); err != nil {
		return simerr.Export("csv").Seed(seed).Timestep(t).Wrap(err)
	}
	return nil
}

func (c *CountsCSV) open(seed int64) (*csvFile, error) {
	if cf, ok := c.files[seed]; ok {
		return cf, nil
	}
	path := CountsCSVPath(c.dir, seed)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if err := cf.w.Write(CountsCSVHeader()); err != nil {
		f.Close()
		return nil, err
	}
	c.files[seed] = cf
	return cf, nil
}

// FinishSeed closes the seed's file.
func (c *CountsCSV) FinishSeed(_ context.Context, seed int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cf, ok := c.files[seed]
	if !ok {
		return nil
	}
	delete(c.files, seed)
	cf.w.Flush()
	if err := cf.w.Error(); err != nil {
		cf.f.Close()
		return simerr.Export("csv").Seed(seed).Wrap(err)
	}
	if err := cf.f.Close(); err != nil {
		return simerr.Export("csv").Seed(seed).Wrap(err)
	}
	return nil
}

// Close closes every file still open.
func (c *CountsCSV) Close() error {
	c.mu.Lock()
	seeds := make([]int64, 0, len(c.files))
	for seed := range c.files {
		seeds = append(seeds, seed)
	}
	c.mu.Unlock()

	var firstErr error
	for _, seed := range seeds {
		if err := c.FinishSeed(context.Background(), seed); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func countsRow(t int, counts disease.Counts) []string {
	row := make([]string, 0, len(counts)+1)
	row = append(row, strconv.Itoa(t))
	for _, v := range counts {
		row = append(row, strconv.Itoa(v))
	}
	return row
}

// ReadCountsCSV parses a file written by CountsCSV.
func ReadCountsCSV(path string) ([]int, []disease.Counts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	header := rows[0]
	states := make([]disease.State, len(header)-1)
	for i, label := range header[1:] {
		s, err := disease.ParseState(label)
		if err != nil {
			return nil, nil, err
		}
		states[i] = s
	}

	steps := make([]int, 0, len(rows)-1)
	counts := make([]disease.Counts, 0, len(rows)-1)
	for _, row := range rows[1:] {
		t, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, nil, err
		}
		var c disease.Counts
		for i, cell := range row[1:] {
			v, err := strconv.Atoi(cell)
			if err != nil {
				return nil, nil, err
			}
			c[states[i]] = v
		}
		steps = append(steps, t)
		counts = append(counts, c)
	}
	return steps, counts, nil
}
