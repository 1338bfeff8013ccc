// Package logs opens the append-only per-concern log files kept next to the
// database: one for confirmed blinks, one for window closures.
package logs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Log file names under the output dir.
const (
	BlinkLog     = "blinks.log"
	AggregateLog = "aggregates.log"
)

// Open returns a logger appending to the named file under dir, plus a close
// func. Each line carries the standard date/time prefix.
func Open(dir, name string) (*log.Logger, func(), error) {
	if dir == "" || name == "" {
		return nil, nil, fmt.Errorf("logs: empty dir or name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logs: create dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logs: open %s: %w", name, err)
	}
	return log.New(file, "", log.LstdFlags), func() { _ = file.Close() }, nil
}
