package ranking

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/identity"
)

// Stats summarizes one load.
type Stats struct {
	RowsRead   int
	Skipped    int // malformed record, missing handle, unparseable or negative score
	Duplicates int // rows merged by the duplicate policy
	Kept       int // entries after top-K truncation
}

// Loader reads ranking files. Failures never abort the run: a missing or
// unreadable file yields an empty set, a malformed row is skipped.
type Loader struct {
	topK   int
	policy string
	logger *slog.Logger
}

// NewLoader creates a loader keeping the topK highest scores and merging
// repeated handles with the given policy (config.DuplicateFirst, Last or Sum).
func NewLoader(topK int, policy string, logger *slog.Logger) *Loader {
	return &Loader{
		topK:   topK,
		policy: policy,
		logger: logger.With("component", "ranking"),
	}
}

// Load parses the file at path. An empty path means no ranking today.
func (l *Loader) Load(path string) (*domain.RankedMetricSet, Stats) {
	empty := &domain.RankedMetricSet{}
	if strings.TrimSpace(path) == "" {
		l.logger.Info("no ranking file supplied, pool allocation skipped")
		return empty, Stats{}
	}

	parser, err := ParserFor(path)
	if err != nil {
		l.logger.Warn("ranking file ignored", "path", path, "error", err)
		return empty, Stats{}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("ranking file not found, continuing with empty ranking", "path", path)
		} else {
			l.logger.Warn("ranking file unreadable, continuing with empty ranking", "path", path, "error", err)
		}
		return empty, Stats{}
	}
	defer f.Close()

	rows, err := parser.Parse(f)
	if err != nil {
		l.logger.Warn("ranking file unparseable, continuing with empty ranking", "path", path, "error", err)
		return empty, Stats{}
	}

	set, stats := l.Build(rows)
	l.logger.Info("ranking loaded",
		"path", path,
		"rows", stats.RowsRead,
		"skipped", stats.Skipped,
		"duplicates", stats.Duplicates,
		"kept", stats.Kept,
		"score_sum", set.ScoreSum().String(),
	)
	return set, stats
}

// Build validates raw rows, merges duplicate handles, sorts by score
// descending (file order breaks ties) and truncates to top-K.
func (l *Loader) Build(rows []RawRow) (*domain.RankedMetricSet, Stats) {
	stats := Stats{RowsRead: len(rows)}

	entries := make([]domain.RankedMetric, 0, len(rows))
	position := make(map[string]int, len(rows))

	for _, row := range rows {
		if row.Malformed {
			stats.Skipped++
			l.logger.Debug("ranking row skipped: malformed record", "line", row.Line)
			continue
		}
		handle := identity.NormalizeHandle(row.Handle)
		if handle == "" {
			stats.Skipped++
			l.logger.Debug("ranking row skipped: missing handle", "line", row.Line)
			continue
		}
		score, err := decimal.NewFromString(strings.TrimSpace(row.Score))
		if err != nil {
			stats.Skipped++
			l.logger.Debug("ranking row skipped: score not numeric", "line", row.Line, "score", row.Score)
			continue
		}
		if score.IsNegative() {
			stats.Skipped++
			l.logger.Debug("ranking row skipped: negative score", "line", row.Line, "score", row.Score)
			continue
		}

		if idx, seen := position[handle]; seen {
			stats.Duplicates++
			switch l.policy {
			case config.DuplicateLast:
				entries[idx].Score = score
			case config.DuplicateSum:
				entries[idx].Score = entries[idx].Score.Add(score)
			}
			continue
		}
		position[handle] = len(entries)
		entries = append(entries, domain.RankedMetric{Handle: handle, Score: score})
	}

	if stats.Duplicates > 0 {
		l.logger.Warn("duplicate handles in ranking merged", "count", stats.Duplicates, "policy", l.policy)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score.GreaterThan(entries[j].Score)
	})
	if l.topK > 0 && len(entries) > l.topK {
		entries = entries[:l.topK]
	}
	stats.Kept = len(entries)

	return &domain.RankedMetricSet{Entries: entries}, stats
}
