package export

import (
	"fmt"
	"os"
	"path/filepath"
)

// Sink persists a finished export. The exporter itself never touches
// the filesystem; whoever owns the export decides where it lands.
type Sink interface {
	Save(name string, data []byte) error
}

// FileSink writes exports into a directory, creating it on first use.
type FileSink struct {
	Dir string
}

func (s FileSink) Save(name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("export: creating %s: %w", s.Dir, err)
	}

	// Only the file name survives; exports never escape the directory.
	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: writing %s: %w", path, err)
	}
	return nil
}
