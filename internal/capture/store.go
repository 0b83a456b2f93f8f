package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultOutputDir is where persisted screenshots are written
	DefaultOutputDir = "/vm/screenshots"

	filenamePrefix = "screenshot_"
	filenameLayout = "20060102_150405"
)

// Store writes screenshots as flat PNG files named by capture time.
// Files written within the same second share a name and overwrite each other.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultOutputDir
	}
	return &Store{
		dir: dir,
		now: time.Now,
	}
}

// Dir returns the output directory
func (s *Store) Dir() string {
	return s.dir
}

// Filename returns the file name used for a screenshot taken at t
func Filename(t time.Time) string {
	return filenamePrefix + t.Format(filenameLayout) + ".png"
}

// Save writes img to the output directory and returns its path.
func (s *Store) Save(img []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(s.dir, Filename(s.now()))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	return path, nil
}

// Prepare creates the output directory and opens its permissions so other
// processes sharing the volume can write to it.
func (s *Store) Prepare() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.Chmod(s.dir, 0o777); err != nil {
		return fmt.Errorf("failed to chmod output directory: %w", err)
	}
	return nil
}

// CheckWritable creates the output directory if needed and verifies a file
// can be created in it.
func (s *Store) CheckWritable() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("Screenshot directory %s is not writable: %w", s.dir, err)
	}

	f, err := os.CreateTemp(s.dir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("Screenshot directory %s is not writable", s.dir)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return nil
}
