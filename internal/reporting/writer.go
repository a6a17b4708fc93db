package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFiles writes LEADERBOARD_<date>.csv and RUN_SUMMARY_<date>.md into dir,
// creating it if needed. Returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	date := r.Summary.RunDate.Format(time.DateOnly)
	files := []struct {
		name    string
		content string
	}{
		{fmt.Sprintf("LEADERBOARD_%s.csv", date), RenderCSV(r.Leaderboard)},
		{fmt.Sprintf("RUN_SUMMARY_%s.md", date), RenderMarkdown(r)},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
