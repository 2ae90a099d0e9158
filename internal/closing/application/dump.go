package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	closing "agreement-closing/internal/closing/domain"
)

// writeDump stores the partial run output under the dump directory,
// using the first unused index for the day.
func writeDump(dir string, results []closing.Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	stamp := time.Now().Format("2006-01-02")
	var path string
	for nth := 1; ; nth++ {
		path = filepath.Join(dir, fmt.Sprintf("data_%03d_%s.json", nth, stamp))
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
	}

	data, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
