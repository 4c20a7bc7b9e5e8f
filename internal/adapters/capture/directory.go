package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/gif" // decoders
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"

	"github.com/okian/rollcall/internal/domain/model"
)

const defaultInterval = 100 * time.Millisecond

var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
}

// DirectorySource replays the images of a directory in lexical order,
// looping forever at a fixed pace. The listing is refreshed at the start of
// every pass so frames can be dropped in while the service runs.
type DirectorySource struct {
	dir      string
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	files  []string
	pos    int
	seq    uint64
	last   time.Time
	closed bool
}

// DirectoryOption configures a DirectorySource.
type DirectoryOption func(*DirectorySource)

// WithInterval sets the pace between frames.
func WithInterval(d time.Duration) DirectoryOption {
	return func(s *DirectorySource) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides the time source used for frame timestamps.
func WithClock(now func() time.Time) DirectoryOption {
	return func(s *DirectorySource) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDirectorySource opens dir. The directory must exist.
func NewDirectorySource(dir string, opts ...DirectoryOption) (*DirectorySource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open frame directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open frame directory %s: not a directory", dir)
	}
	s := &DirectorySource{dir: dir, interval: defaultInterval, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next waits for the next frame slot and decodes the next file.
// Unreadable files and an empty directory yield ErrAcquisition.
func (s *DirectorySource) Next(ctx context.Context) (model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.Frame{}, ErrClosed
	}
	if err := s.pace(ctx); err != nil {
		return model.Frame{}, err
	}

	if s.pos >= len(s.files) {
		files, err := s.list()
		if err != nil {
			return model.Frame{}, fmt.Errorf("%w: %w", ErrAcquisition, err)
		}
		s.files, s.pos = files, 0
	}
	if len(s.files) == 0 {
		return model.Frame{}, fmt.Errorf("%w: no frames in %s", ErrAcquisition, s.dir)
	}

	path := s.files[s.pos]
	s.pos++

	img, err := decode(path)
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: %s: %w", ErrAcquisition, filepath.Base(path), err)
	}
	s.seq++
	return model.Frame{Seq: s.seq, Image: img, CapturedAt: s.now()}, nil
}

// Close releases the source. Further Next calls return ErrClosed.
func (s *DirectorySource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *DirectorySource) pace(ctx context.Context) error {
	if !s.last.IsZero() {
		if wait := s.interval - time.Since(s.last); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	s.last = time.Now()
	return ctx.Err()
}

func (s *DirectorySource) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
