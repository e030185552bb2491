package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcelsud/dmz-exchange/internal/atomicfile"
	"github.com/marcelsud/dmz-exchange/internal/requestid"
	"github.com/marcelsud/dmz-exchange/message"
	"github.com/rs/zerolog"
)

// ErrPersist is the only error Persist returns; the cause is logged
var ErrPersist = errors.New("failed to persist message")

// Layout decides where a message lands under the root directory
type Layout int

const (
	// ByProject stores {root}/{project}/{id}.json
	ByProject Layout = iota + 1
	// ByDate stores {root}/{yyyy}/{mm}/{dd}/{id}.json
	ByDate
)

// String returns the string representation of the layout
func (l Layout) String() string {
	switch l {
	case ByProject:
		return "by-project"
	case ByDate:
		return "by-date"
	default:
		return "unknown"
	}
}

/* Store writes validated messages to disk atomically
 * A record is either absent or complete. Writing the same id twice
 * overwrites the first record.
 */
type Store struct {
	root   string
	tmpDir string
	layout Layout
	logger zerolog.Logger

	// rename is swapped in tests to fail between temp write and publish
	rename atomicfile.RenameFunc
}

// New creates a store, making sure root and tmpDir exist
func New(root, tmpDir string, layout Layout, logger zerolog.Logger) (*Store, error) {
	if layout != ByProject && layout != ByDate {
		return nil, fmt.Errorf("invalid store layout: %d", layout)
	}
	for _, dir := range []string{root, tmpDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return &Store{
		root:   root,
		tmpDir: tmpDir,
		layout: layout,
		logger: logger.With().Str("component", "store").Str("layout", layout.String()).Logger(),
		rename: os.Rename,
	}, nil
}

// Path returns where msg is stored
func (s *Store) Path(msg message.Message) (string, error) {
	name := msg.ID + ".json"
	switch s.layout {
	case ByProject:
		return filepath.Join(s.root, msg.Project, name), nil
	case ByDate:
		year, month, day, err := msg.DateParts()
		if err != nil {
			return "", err
		}
		return filepath.Join(s.root, year, month, day, name), nil
	default:
		return "", fmt.Errorf("invalid store layout: %d", s.layout)
	}
}

// Persist serializes msg and publishes it at its deterministic path
func (s *Store) Persist(ctx context.Context, msg message.Message) (string, error) {
	logger := s.logger.With().
		Str("request_id", requestid.FromContext(ctx)).
		Str("message_id", msg.ID).
		Str("project", msg.Project).
		Logger()

	path, err := s.Path(msg)
	if err != nil {
		logger.Error().Err(err).Msg("resolving message path")
		return "", ErrPersist
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("marshaling message")
		return "", ErrPersist
	}

	if err := atomicfile.Write(s.tmpDir, path, data, s.rename); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("writing message file")
		return "", ErrPersist
	}

	logger.Info().Str("path", path).Msg("message persisted")
	return path, nil
}

// ListProjects returns the project directories found under a ByProject root
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	projects := []string{}
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) == 3 {
			projects = append(projects, e.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// ListMessages returns the message ids stored for project under a ByProject root
func (s *Store) ListMessages(project string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, project))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing messages for %s: %w", project, err)
	}

	ids := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
