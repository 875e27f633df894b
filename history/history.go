// Package history persists finished conversations as JSON files, one per
// conversation, so past verdicts and transcripts survive restarts.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/logging"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
	titleMax = 60
)

// Summary is the listing view of a stored conversation.
type Summary struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Mode    core.Mode  `json:"mode"`
	Phase   core.Phase `json:"phase"`
	Updated time.Time  `json:"updated"`
}

// Options configure a Store.
type Options struct {
	// Logger records persistence activity. Defaults to NoOp.
	Logger logging.Logger
}

// Store reads and writes conversation records under a single directory.
type Store struct {
	dir    string
	logger logging.Logger
}

// NewStore creates the directory if needed and returns the store. Records are
// written with owner-only permissions since transcripts may contain anything
// the user typed.
func NewStore(dir string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	return &Store{dir: dir, logger: logging.OrNoOp(opts.Logger)}, nil
}

// Save writes one conversation record, replacing any previous version.
func (s *Store) Save(st core.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation %s: %w", st.ID, err)
	}
	path := s.path(st.ID)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("writing conversation %s: %w", st.ID, err)
	}
	s.logger.Debug("conversation saved id=%s path=%s", st.ID, path)
	return nil
}

// Load reads one conversation record.
func (s *Store) Load(id string) (core.State, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return core.State{}, fmt.Errorf("reading conversation %s: %w", id, err)
	}
	var st core.State
	if err := json.Unmarshal(data, &st); err != nil {
		return core.State{}, fmt.Errorf("decoding conversation %s: %w", id, err)
	}
	return st, nil
}

// Delete removes one conversation record. Deleting a missing record is not an
// error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns summaries of every stored conversation, most recently updated
// first. Unreadable records are skipped with a warning rather than failing
// the whole listing.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing history dir: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		st, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable record %s: %v", e.Name(), err)
			continue
		}
		out = append(out, Summary{
			ID:      st.ID,
			Title:   Title(st),
			Mode:    st.Mode,
			Phase:   st.Phase,
			Updated: st.Updated,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	return out, nil
}

// Title derives a display title from the first user message.
func Title(st core.State) string {
	for _, m := range st.Transcript {
		if !m.IsUser() {
			continue
		}
		title := strings.TrimSpace(m.Content)
		if title == "" {
			break
		}
		if len(title) > titleMax {
			title = title[:titleMax] + "..."
		}
		return title
	}
	return "New conversation"
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
