package application

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"
)

// OpenRunLog creates the next unused log file of the day under dir
// and returns a logger writing to it and to stdout. Every run gets
// its own file so parallel closer and finalizer runs never share one.
// The caller closes the returned file after the final log line.
func OpenRunLog(dir, appName, version string) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	day := time.Now().Format("2006-01-02")
	var path string
	for nth := 1; ; nth++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%03d.log", day, nth))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			break
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, nil, err
	}

	logger := log.New(io.MultiWriter(os.Stdout, file), "", log.LstdFlags)
	logger.Printf("Application name: %s", appName)
	logger.Printf("Application version: %s", version)
	logger.Printf("Log date: %s", time.Now().Format("02-Jan-2006"))
	logger.Println()
	return logger, file, nil
}
