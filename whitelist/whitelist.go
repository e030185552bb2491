package whitelist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/marcelsud/dmz-exchange/internal/atomicfile"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyExists = errors.New("project already exists")
	ErrInvalidCode   = errors.New("invalid project code")
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3}$`)

// Entry is one project of the whitelist
type Entry struct {
	Code    string
	Enabled bool
}

type project struct {
	Enabled bool `json:"enabled"`
}

// document is the on-disk format: {"projects": {"AAA": {"enabled": true}}}
type document struct {
	Projects map[string]project `json:"projects"`
}

// stamp identifies a version of the file; a mismatch invalidates the cache
type stamp struct {
	modTime int64
	size    int64
}

/* Whitelist is the per-project gate backed by a single JSON file
 * The file is authoritative. The cache is a read-through view reloaded
 * whenever the file stamp changes, so edits by other processes are picked up
 * on the next read. All reads and writes go through one mutex.
 */
type Whitelist struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	cache  map[string]project
	seen   stamp
	loaded bool
}

// New opens the whitelist at path, creating an empty document if absent
func New(path string, logger zerolog.Logger) (*Whitelist, error) {
	w := &Whitelist{
		path:   path,
		logger: logger.With().Str("component", "whitelist").Logger(),
		cache:  map[string]project{},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating whitelist directory: %w", err)
	}
	_, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		w.mu.Lock()
		err = w.save(map[string]project{})
		w.mu.Unlock()
		if err != nil {
			return nil, err
		}
		w.logger.Info().Str("path", path).Msg("created whitelist file")
	case err != nil:
		return nil, fmt.Errorf("checking whitelist file: %w", err)
	default:
		w.logger.Info().Str("path", path).Msg("using whitelist file")
	}

	return w, nil
}

// Path returns the backing file path
func (w *Whitelist) Path() string {
	return w.path
}

// IsAllowed reports whether code is present and enabled.
// A file that cannot be read or parsed denies every project.
func (w *Whitelist) IsAllowed(code string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	projects, err := w.current()
	if err != nil {
		w.logger.Error().Err(err).Str("project", code).Msg("whitelist unreadable, denying project")
		return false
	}

	p, ok := projects[code]
	if !ok {
		w.logger.Debug().Str("project", code).Msg("project not in whitelist")
		return false
	}
	if !p.Enabled {
		w.logger.Debug().Str("project", code).Msg("project disabled")
	}
	return p.Enabled
}

// Add inserts a new project
func (w *Whitelist) Add(code string, enabled bool) error {
	if !codePattern.MatchString(code) {
		return fmt.Errorf("adding project %q: %w", code, ErrInvalidCode)
	}

	_, err := w.mutate(func(projects map[string]project) (bool, error) {
		if _, ok := projects[code]; ok {
			return false, fmt.Errorf("adding project %s: %w", code, ErrAlreadyExists)
		}
		projects[code] = project{Enabled: enabled}
		return true, nil
	})
	if err != nil {
		return err
	}

	w.logger.Info().Str("project", code).Bool("enabled", enabled).Msg("project added")
	return nil
}

// Enable turns on an existing project; false if it does not exist
func (w *Whitelist) Enable(code string) (bool, error) {
	return w.setEnabled(code, true)
}

// Disable turns off an existing project; false if it does not exist
func (w *Whitelist) Disable(code string) (bool, error) {
	return w.setEnabled(code, false)
}

func (w *Whitelist) setEnabled(code string, enabled bool) (bool, error) {
	found, err := w.mutate(func(projects map[string]project) (bool, error) {
		if _, ok := projects[code]; !ok {
			return false, nil
		}
		projects[code] = project{Enabled: enabled}
		return true, nil
	})
	if err != nil || !found {
		return found, err
	}

	w.logger.Info().Str("project", code).Bool("enabled", enabled).Msg("project updated")
	return true, nil
}

// Remove deletes a project; false if it does not exist
func (w *Whitelist) Remove(code string) (bool, error) {
	found, err := w.mutate(func(projects map[string]project) (bool, error) {
		if _, ok := projects[code]; !ok {
			return false, nil
		}
		delete(projects, code)
		return true, nil
	})
	if err != nil || !found {
		return found, err
	}

	w.logger.Info().Str("project", code).Msg("project removed")
	return true, nil
}

// List returns every project sorted by code
func (w *Whitelist) List() ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	projects, err := w.current()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(projects))
	for code, p := range projects {
		entries = append(entries, Entry{Code: code, Enabled: p.Enabled})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
	return entries, nil
}

// CheckEntries reports every entry whose code is not a valid project code
func CheckEntries(entries []Entry) error {
	var errs []error
	for _, e := range entries {
		if !codePattern.MatchString(e.Code) {
			errs = append(errs, fmt.Errorf("project %q: %w", e.Code, ErrInvalidCode))
		}
	}
	return errors.Join(errs...)
}

// Close releases nothing; the file is only held open during reads and writes
func (w *Whitelist) Close() error {
	return nil
}

// mutate runs fn on a private copy of the current projects and persists it
// when fn reports a change. The lock is held for the whole read-modify-write.
func (w *Whitelist) mutate(fn func(map[string]project) (bool, error)) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := w.current()
	if err != nil {
		return false, err
	}

	next := make(map[string]project, len(current)+1)
	for k, v := range current {
		next[k] = v
	}

	changed, err := fn(next)
	if err != nil || !changed {
		return changed, err
	}
	if err := w.save(next); err != nil {
		return false, err
	}
	return true, nil
}

// current returns the cached projects, reloading them if the file changed.
// Caller must hold mu.
func (w *Whitelist) current() (map[string]project, error) {
	info, err := os.Stat(w.path)
	if os.IsNotExist(err) {
		// deleted out from under us: nothing is allowed until it is recreated
		w.cache = map[string]project{}
		w.seen = stamp{}
		w.loaded = true
		return w.cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking whitelist file: %w", err)
	}

	now := stampOf(info)
	if w.loaded && now == w.seen {
		return w.cache, nil
	}

	projects, err := w.read()
	if err != nil {
		return nil, err
	}
	w.cache = projects
	w.seen = now
	w.loaded = true
	w.logger.Debug().Int("projects", len(projects)).Msg("whitelist reloaded")
	return w.cache, nil
}

func (w *Whitelist) read() (map[string]project, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("reading whitelist file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing whitelist file: %w", err)
	}
	if doc.Projects == nil {
		doc.Projects = map[string]project{}
	}
	return doc.Projects, nil
}

func stampOf(info os.FileInfo) stamp {
	return stamp{modTime: info.ModTime().UnixNano(), size: info.Size()}
}

// save writes the whole document atomically and refreshes the cache.
// Caller must hold mu.
func (w *Whitelist) save(projects map[string]project) error {
	data, err := json.MarshalIndent(document{Projects: projects}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling whitelist: %w", err)
	}
	if err := atomicfile.Write("", w.path, append(data, '\n'), nil); err != nil {
		return fmt.Errorf("writing whitelist file: %w", err)
	}

	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("checking whitelist file: %w", err)
	}
	w.cache = projects
	w.seen = stampOf(info)
	w.loaded = true
	return nil
}
