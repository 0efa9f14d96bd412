package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/V4T54L/callwatch/internal/domain"
)

const (
	filePerm = 0644
	dirPerm  = 0755

	// DefaultRetention is the age after which whole log files are deleted.
	DefaultRetention = 7 * 24 * time.Hour

	dateLayout = "2006-01-02"
)

var fileNamePattern = regexp.MustCompile(`^(api|flow|error)-(\d{4}-\d{2}-\d{2})\.log$`)

// FileName returns the log file name for a category and calendar day.
func FileName(kind domain.Kind, day time.Time) string {
	return fmt.Sprintf("%s-%s.log", kind, day.UTC().Format(dateLayout))
}

type openFile struct {
	name string
	f    *os.File
}

// Repository implements domain.EntryStore on per-day, per-category text files.
type Repository struct {
	dir       string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	open map[domain.Kind]*openFile
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for pruning.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates the log directory if needed and returns a file-backed store.
func NewRepository(dir string, retention time.Duration, logger *slog.Logger, opts ...Option) (*Repository, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	r := &Repository{
		dir:       dir,
		retention: retention,
		logger:    logger.With("component", "file_repository"),
		now:       time.Now,
		open:      make(map[domain.Kind]*openFile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the directory holding the log files.
func (r *Repository) Dir() string {
	return r.dir
}

// Append formats the entry and writes it to its category file with a single write.
func (r *Repository) Append(ctx context.Context, entry domain.Entry) error {
	var (
		record string
		err    error
	)
	switch e := entry.(type) {
	case domain.APICallEntry:
		record = formatAPICall(e)
	case domain.FlowEventEntry:
		record, err = formatFlowEvent(e)
	case domain.ErrorEntry:
		record = formatError(e)
	default:
		return fmt.Errorf("unsupported entry type %T", entry)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.fileFor(entry.Kind(), entry.Time())
	if err != nil {
		return err
	}
	if _, err := f.WriteString(record); err != nil {
		return fmt.Errorf("failed to append to %s: %w", f.Name(), err)
	}
	return nil
}

// fileFor returns the handle for the kind's file of the given day, rotating
// the previous handle on date rollover. Callers hold r.mu.
func (r *Repository) fileFor(kind domain.Kind, ts time.Time) (*os.File, error) {
	name := FileName(kind, ts)
	if cur, ok := r.open[kind]; ok {
		if cur.name == name {
			return cur.f, nil
		}
		if err := cur.f.Close(); err != nil {
			r.logger.Error("Failed to close log file before rotating", "path", cur.name, "error", err)
		}
		delete(r.open, kind)
	}

	path := filepath.Join(r.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	r.open[kind] = &openFile{name: name, f: f}
	r.logger.Debug("Opened log file", "path", path)
	return f, nil
}

// Recent returns at most limit entries of the selected kind, most recent first.
func (r *Repository) Recent(ctx context.Context, kind domain.Kind, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		return []domain.Entry{}, nil
	}
	entries, err := r.Entries(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Entry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Search returns matching entries, most recent first, capped at domain.MaxSearchResults.
func (r *Repository) Search(ctx context.Context, keyword string, kind domain.Kind) ([]domain.Entry, error) {
	entries, err := r.Entries(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := []domain.Entry{}
	for i := len(entries) - 1; i >= 0 && len(out) < domain.MaxSearchResults; i-- {
		if domain.Matches(entries[i], keyword) {
			out = append(out, entries[i])
		}
	}
	return out, nil
}

// Entries re-parses every retained file of the selected kind. Within a
// category, file order is append order; across categories entries are
// merged by timestamp.
func (r *Repository) Entries(ctx context.Context, kind domain.Kind) ([]domain.Entry, error) {
	files, err := r.listFiles()
	if err != nil {
		return nil, err
	}

	var entries []domain.Entry
	for _, lf := range files {
		if !kind.Selects(lf.kind) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(lf.path)
		if errors.Is(err, os.ErrNotExist) {
			// Pruned between listing and reading.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log file %s: %w", lf.path, err)
		}
		entries = append(entries, parseFile(lf.kind, string(content))...)
	}

	if kind == domain.KindAll {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Time().Before(entries[j].Time())
		})
	}
	return entries, nil
}

func parseFile(kind domain.Kind, content string) []domain.Entry {
	var out []domain.Entry
	switch kind {
	case domain.KindAPI:
		for _, e := range parseAPICalls(content) {
			out = append(out, e)
		}
	case domain.KindFlow:
		for _, e := range parseFlowEvents(content) {
			out = append(out, e)
		}
	case domain.KindError:
		for _, e := range parseErrors(content) {
			out = append(out, e)
		}
	}
	return out
}

// Prune deletes whole log files whose modification time is past the retention horizon.
func (r *Repository) Prune(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	files, err := r.listFiles()
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.retention)
	removed := 0
	var errs []error
	for _, lf := range files {
		info, err := os.Stat(lf.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to stat %s: %w", lf.path, err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if cur, ok := r.open[lf.kind]; ok && cur.name == lf.name {
			if err := cur.f.Close(); err != nil {
				r.logger.Error("Failed to close log file before removal", "path", cur.name, "error", err)
			}
			delete(r.open, lf.kind)
		}
		if err := os.Remove(lf.path); err != nil {
			r.logger.Error("Failed to remove old log file", "path", lf.path, "error", err)
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", lf.path, err))
			continue
		}
		removed++
		r.logger.Info("Removed old log file", "file", lf.name)
	}
	return removed, errors.Join(errs...)
}

type logFile struct {
	name string
	path string
	kind domain.Kind
	day  string
}

// listFiles returns the store's log files ordered by day, then category.
func (r *Repository) listFiles() ([]logFile, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var files []logFile
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		files = append(files, logFile{
			name: de.Name(),
			path: filepath.Join(r.dir, de.Name()),
			kind: domain.Kind(m[1]),
			day:  m[2],
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].day != files[j].day {
			return files[i].day < files[j].day
		}
		return files[i].name < files[j].name
	})
	return files, nil
}

// Close closes any open log file handles.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for kind, cur := range r.open {
		if err := cur.f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.open, kind)
	}
	return errors.Join(errs...)
}
