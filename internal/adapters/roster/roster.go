// Package roster loads the people who can be marked present.
//
// The roster is a tab-separated file with a header row:
//
//	rollno	name	branch
//
// It is read once at startup. Register appends new rows.
package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Sentinel errors.
var (
	ErrUnknownPerson   = errors.New("roster: unknown person")
	ErrDuplicatePerson = errors.New("roster: person already registered")
	ErrInvalidPerson   = errors.New("roster: invalid person")
	ErrRosterRead      = errors.New("roster: read failed")
)

var header = []string{"rollno", "name", "branch"}

// Roster is an in-memory, file-backed list of people.
type Roster struct {
	path string
	log  logger.Logger

	mu      sync.RWMutex
	people  map[int]model.Person
	skipped int
}

// Load reads path. A missing file yields an empty roster that Register will create.
func Load(ctx context.Context, path string, log logger.Logger) (*Roster, error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &Roster{path: path, log: log, people: make(map[int]model.Person)}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn(ctx, "roster file missing, starting empty", logger.String("path", path))
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRosterRead, err)
	}
	defer f.Close()

	if err := r.read(ctx, f); err != nil {
		return nil, err
	}
	metrics.UpdateRosterSize(r.Len())
	log.Info(ctx, "roster loaded", logger.Int("people", r.Len()), logger.Int("skipped", r.skipped))
	return r, nil
}

func (r *Roster) read(ctx context.Context, src io.Reader) error {
	cr := csv.NewReader(src)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRosterRead, err)
		}
		line++
		if line == 1 && isHeader(row) {
			continue
		}
		p, err := parseRow(row)
		if err != nil {
			r.skipped++
			r.log.Warn(ctx, "skipping roster row", logger.Int("line", line), logger.Error(err))
			continue
		}
		r.people[p.ID] = p
	}
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), header[0])
}

func parseRow(row []string) (model.Person, error) {
	if len(row) < 2 {
		return model.Person{}, fmt.Errorf("%w: want at least 2 columns, got %d", ErrInvalidPerson, len(row))
	}
	id, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return model.Person{}, fmt.Errorf("%w: rollno %q", ErrInvalidPerson, row[0])
	}
	p := model.Person{ID: id, DisplayName: normalize(row[1])}
	if len(row) > 2 {
		p.Metadata = normalize(row[2])
	}
	return p, validate(p)
}

func validate(p model.Person) error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: rollno must be positive", ErrInvalidPerson)
	}
	if p.DisplayName == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidPerson)
	}
	if strings.ContainsAny(p.DisplayName+p.Metadata, "\t\r\n") {
		return fmt.Errorf("%w: fields must not contain tabs or newlines", ErrInvalidPerson)
	}
	return nil
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Lookup returns the person with id.
func (r *Roster) Lookup(id int) (model.Person, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.people[id]
	return p, ok
}

// Resolve is Lookup with an error for unknown ids.
func (r *Roster) Resolve(id int) (model.Person, error) {
	p, ok := r.Lookup(id)
	if !ok {
		return model.Person{}, fmt.Errorf("%w: %d", ErrUnknownPerson, id)
	}
	return p, nil
}

// Len returns the number of people.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.people)
}

// Skipped returns the number of rows ignored at load.
func (r *Roster) Skipped() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skipped
}

// People returns everyone ordered by id.
func (r *Roster) People() []model.Person {
	r.mu.RLock()
	out := make([]model.Person, 0, len(r.people))
	for _, p := range r.people {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Register appends p to the roster file and makes it visible to Lookup.
func (r *Roster) Register(ctx context.Context, p model.Person) (model.Person, error) {
	p.DisplayName = normalize(p.DisplayName)
	p.Metadata = normalize(p.Metadata)
	if err := validate(p); err != nil {
		return model.Person{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.people[p.ID]; ok {
		return model.Person{}, fmt.Errorf("%w: %d", ErrDuplicatePerson, p.ID)
	}
	if err := r.append(p); err != nil {
		return model.Person{}, err
	}
	r.people[p.ID] = p
	metrics.UpdateRosterSize(len(r.people))
	r.log.Info(ctx, "person registered", logger.Int("rollno", p.ID), logger.String("name", p.DisplayName))
	return p, nil
}

func (r *Roster) append(p model.Person) error {
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create roster dir: %w", err)
		}
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat roster: %w", err)
	}
	if info.Size() > 0 {
		// An unterminated last row would swallow the new one.
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			return fmt.Errorf("read roster tail: %w", err)
		}
		if last[0] != '\n' {
			if _, err := f.Write([]byte{'\n'}); err != nil {
				return fmt.Errorf("terminate roster row: %w", err)
			}
		}
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write roster header: %w", err)
		}
	}
	if err := w.Write([]string{strconv.Itoa(p.ID), p.DisplayName, p.Metadata}); err != nil {
		return fmt.Errorf("write roster row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush roster: %w", err)
	}
	return f.Sync()
}
