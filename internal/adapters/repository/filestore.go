package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

var fileHeader = []string{"RollNo", "Name", "Date", "Time", "Status"}

// FileStore keeps records in a CSV file, one row per record.
type FileStore struct {
	path string
	log  logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewFileStore returns a store backed by path. The file and its directory are
// created on the first Append.
func NewFileStore(path string, opts ...Option) *FileStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &FileStore{path: path, log: o.log}
}

// Append writes rec and fsyncs before returning.
func (s *FileStore) Append(ctx context.Context, rec model.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.append(rec); err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	metrics.RecordStoreWrite()
	return nil
}

func (s *FileStore) append(rec model.AttendanceRecord) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := terminateLastLine(f, info.Size()); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(fileHeader); err != nil {
			return err
		}
	}
	row := []string{strconv.Itoa(rec.PersonID), rec.DisplayName, rec.Date, rec.Time, rec.Status}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// terminateLastLine writes a newline when the file does not already end with
// one, so an externally edited or torn last row is not merged with the next.
func terminateLastLine(f *os.File, size int64) error {
	if size == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err := f.Write([]byte{'\n'})
	return err
}

// LoadAll reads every row. A missing file is an empty store.
func (s *FileStore) LoadAll(ctx context.Context) ([]model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var out []model.AttendanceRecord
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.log.Warn(ctx, "unparseable attendance row", logger.Int("line", line), logger.Error(err))
				out = append(out, model.AttendanceRecord{})
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), fileHeader[0]) {
			continue
		}
		out = append(out, decodeRow(row))
	}
}

// List returns records for date.
func (s *FileStore) List(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterDate(all, date), nil
}

// Close marks the store closed. Files are opened per call so nothing else is held.
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// decodeRow maps a CSV row to a record; malformed rows keep PersonID 0.
func decodeRow(row []string) model.AttendanceRecord {
	if len(row) != len(fileHeader) {
		return model.AttendanceRecord{}
	}
	id, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil || id <= 0 {
		return model.AttendanceRecord{}
	}
	return model.AttendanceRecord{
		PersonID:    id,
		DisplayName: row[1],
		Date:        strings.TrimSpace(row[2]),
		Time:        strings.TrimSpace(row[3]),
		Status:      strings.TrimSpace(row[4]),
	}
}
