package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CSVSink writes each dataset to its own CSV file and keeps run metadata in
// a JSON index next to the data files.
type CSVSink struct {
	mu  sync.Mutex
	dir string
}

const runIndexFile = "runs.json"

// NewCSVSink creates a CSV sink writing into dir.
func NewCSVSink(dir string) (*CSVSink, error) {
	if dir == "" {
		dir = "./datasets"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	return &CSVSink{dir: dir}, nil
}

// WriteDataset writes all rows to a new file named
// transactions_<rows>_<timestamp>.csv and records the run in the index. The
// file is written to a temporary name and renamed into place so a partial
// dataset is never visible.
func (s *CSVSink) WriteDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.RunID == "" {
		return fmt.Errorf("%w: dataset with run id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("transactions_%d_%s.csv",
		len(ds.Events), ds.GeneratedAt.Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(domain.DatasetColumns); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(domain.DatasetColumns))
	for _, e := range ds.Events {
		row[0] = e.CustomerID
		row[1] = e.Timestamp.Format(domain.TimestampLayout)
		row[2] = strconv.FormatFloat(e.Amount, 'f', 2, 64)
		row[3] = formatBalance(e.OldBalance)
		row[4] = formatBalance(e.NewBalance)
		row[5] = e.Merchant
		row[6] = e.Category
		row[7] = e.Location
		row[8] = strconv.Itoa(e.Age)
		row[9] = e.Gender
		row[10] = e.TransactionType
		row[11] = strconv.Itoa(e.IsFraud)
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close dataset file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to finalize dataset file: %w", err)
	}

	return s.appendRun(ds.Info())
}

// GetRun retrieves run metadata by ID from the index.
func (s *CSVSink) GetRun(ctx context.Context, runID string) (*domain.RunInfo, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// LatestRun retrieves the most recently appended run.
func (s *CSVSink) LatestRun(ctx context.Context) (*domain.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[len(runs)-1], nil
}

// Ping verifies the dataset directory is writable.
func (s *CSVSink) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("dataset directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("dataset path %s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op; files are closed per write.
func (s *CSVSink) Close() error {
	return nil
}

func (s *CSVSink) appendRun(info *domain.RunInfo) error {
	runs, err := s.readIndex()
	if err != nil {
		return err
	}
	runs = append(runs, info)

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, runIndexFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write run index: %w", err)
	}
	return nil
}

func (s *CSVSink) readIndex() ([]*domain.RunInfo, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, runIndexFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}

	var runs []*domain.RunInfo
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, fmt.Errorf("failed to parse run index: %w", err)
	}
	return runs, nil
}

// formatBalance keeps full float precision for balances, matching the raw
// arithmetic chain rather than display rounding.
func formatBalance(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
