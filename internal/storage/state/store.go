// Package state persists the bot status, equity series and trade log under one directory.
package state

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"go.uber.org/zap"
)

const (
	statusFileName = "status.json"
	equityFileName = "equity.csv"
	tradesFileName = "trades.jsonl"

	dirPerm  = 0o755
	filePerm = 0o644
)

var equityHeader = []string{"timestamp", "equity"}

// accepted timestamp layouts when reading equity.csv
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"}

// Store reads and writes the state files. Writers are the trading loop only;
// readers (API, reports) may run concurrently.
type Store struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// TradeLine is one line of trades.jsonl.
type TradeLine struct {
	domain.FillRecord
	Raw map[string]any `json:"raw,omitempty"`
}

// NewStore ensures dir exists.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("state path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "create state dir %s", dir)
	}
	return &Store{dir: dir, logger: logger, now: time.Now}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveStatus atomically overwrites status.json.
func (s *Store) SaveStatus(status domain.StatusSnapshot) error {
	if status.OpenPositions == nil {
		status.OpenPositions = []domain.OpenPosition{}
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path(statusFileName), data, filePerm); err != nil {
		return errors.Wrapf(domain.ErrPersistenceFailure, "write status: %v", err)
	}
	return nil
}

// LoadStatus returns the persisted status, or defaults when the file is
// missing or unreadable.
func (s *Store) LoadStatus(defaultMode domain.Mode) domain.StatusSnapshot {
	data, err := os.ReadFile(s.path(statusFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read status.json", zap.Error(err))
		}
		return domain.DefaultStatus(defaultMode)
	}

	var status domain.StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		s.logger.Error("failed to parse status.json", zap.Error(err))
		return domain.DefaultStatus(defaultMode)
	}
	if status.Mode == "" {
		status.Mode = defaultMode
	}
	if status.OpenPositions == nil {
		status.OpenPositions = []domain.OpenPosition{}
	}
	return status
}

// SaveEquity rewrites equity.csv from the bounded curve.
func (s *Store) SaveEquity(points []domain.EquityPoint) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(equityHeader); err != nil {
		return errors.Wrap(err, "write equity header")
	}
	for _, p := range points {
		if err := w.Write([]string{p.Time.UTC().Format(time.RFC3339Nano), p.Equity.String()}); err != nil {
			return errors.Wrap(err, "write equity row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush equity csv")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path(equityFileName), buf.Bytes(), filePerm); err != nil {
		return errors.Wrapf(domain.ErrPersistenceFailure, "write equity: %v", err)
	}
	return nil
}

// LoadEquity reads equity.csv sorted by time. A missing file yields no points.
func (s *Store) LoadEquity() ([]domain.EquityPoint, error) {
	f, err := os.Open(s.path(equityFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open equity.csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var points []domain.EquityPoint
	for line := 0; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read equity.csv")
		}
		if line == 0 && len(rec) > 0 && rec[0] == equityHeader[0] {
			continue
		}
		if len(rec) < 2 {
			continue
		}

		ts, ok := parseTime(rec[0])
		if !ok {
			s.logger.Warn("skipping equity row with bad timestamp", zap.Int("line", line+1))
			continue
		}
		equity, err := decimal.NewFromString(rec[1])
		if err != nil {
			s.logger.Warn("skipping equity row with bad value", zap.Int("line", line+1))
			continue
		}
		points = append(points, domain.EquityPoint{Time: ts, Equity: equity})
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// AppendTrade appends one fill to trades.jsonl and fsyncs it.
func (s *Store) AppendTrade(record domain.FillRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}
	data, err := json.Marshal(TradeLine{FillRecord: record, Raw: record.Raw})
	if err != nil {
		return errors.Wrap(err, "marshal trade")
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(tradesFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return errors.Wrapf(domain.ErrPersistenceFailure, "open trades: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(domain.ErrPersistenceFailure, "append trade: %v", err)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(domain.ErrPersistenceFailure, "sync trades: %v", err)
	}
	return nil
}

// LoadTrades returns the last limit trades (all when limit <= 0). Corrupt lines are skipped.
func (s *Store) LoadTrades(limit int) ([]TradeLine, error) {
	f, err := os.Open(s.path(tradesFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return []TradeLine{}, nil
		}
		return nil, errors.Wrap(err, "open trades.jsonl")
	}
	defer f.Close()

	trades := make([]TradeLine, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var t TradeLine
		if err := json.Unmarshal(line, &t); err != nil {
			s.logger.Warn("skipping corrupt trade line", zap.Error(err))
			continue
		}
		trades = append(trades, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan trades.jsonl")
	}

	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	return trades, nil
}

// ComputeEquityMetrics loads the equity series and summarizes it.
func (s *Store) ComputeEquityMetrics() (EquityMetrics, error) {
	points, err := s.LoadEquity()
	if err != nil {
		return EquityMetrics{}, err
	}
	return ComputeMetrics(points), nil
}

func parseTime(v string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// writeFileAtomic writes data to path via a temp file, fsync and rename.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	// best-effort fsync of the parent dir
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
