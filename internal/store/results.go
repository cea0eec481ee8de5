package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ibeckermayer/pageprobe/internal/config"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

// ResultsFile is written next to the screenshots of each run.
const ResultsFile = "results.json"

// HistoryPath returns the path to the run history database.
func HistoryPath() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "history.db"), nil
}

// SaveResults writes the run report as indented JSON into dir.
// Returns the path to the saved file.
func SaveResults(dir string, r *types.RunReport) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results dir: %w", err)
	}

	path := filepath.Join(dir, ResultsFile)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}

	return path, nil
}
