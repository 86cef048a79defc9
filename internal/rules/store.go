package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means no rule matches the given id or name.
	ErrNotFound = errors.New("rule not found")

	// ErrDuplicateName means another rule already uses the name
	// (comparison is case-insensitive).
	ErrDuplicateName = errors.New("rule name already in use")

	// ErrPermanentDeleteDisabled means the rule declares a
	// delete_permanent action but the store was not configured to
	// accept destructive rules.
	ErrPermanentDeleteDisabled = errors.New("permanent delete actions are disabled")
)

// IOError wraps a filesystem failure while reading or writing the rule file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("rule store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError wraps invalid JSON in the rule file. Unlike IOError it is always
// fatal for a load: silently dropping a corrupt file would lose rules.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rule store: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsStoreIO reports whether err is a rule-file read/write failure.
func IsStoreIO(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// IsStoreParse reports whether err means the rule file holds invalid JSON.
func IsStoreParse(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// Store persists rules as a JSON array in a single file. The file is the
// source of truth: every operation reads it fresh, and writes replace it
// atomically via a temp file and rename. A process-wide lock serializes
// writers; concurrent processes are not coordinated.
type Store struct {
	mu                   sync.RWMutex
	path                 string
	allowPermanentDelete bool
	logger               *slog.Logger
}

// NewStore creates a store backed by the JSON file at path. The file does not
// need to exist yet. When allowPermanentDelete is false, saving a rule with a
// delete_permanent action is rejected.
func NewStore(path string, allowPermanentDelete bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:                 path,
		allowPermanentDelete: allowPermanentDelete,
		logger:               logger,
	}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// List returns every valid rule in the store. A missing file means an empty
// store. An unreadable file degrades to an empty list with a warning so that
// read paths keep working; invalid JSON is returned as a ParseError because
// ignoring it would silently lose rules.
func (s *Store) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loaded, err := s.load()
	if err != nil {
		if IsStoreIO(err) {
			s.logger.Warn("rule file unreadable, treating store as empty", "path", s.path, "error", err)
			return nil, nil
		}
		return nil, err
	}
	return loaded, nil
}

// Enabled returns the enabled rules in store order.
func (s *Store) Enabled() ([]*Rule, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	enabled := make([]*Rule, 0, len(all))
	for _, r := range all {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

// Get returns the rule with the given id.
func (s *Store) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loaded, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, r := range loaded {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Find returns the rule with the given id, or failing that, the rule whose
// name matches case-insensitively.
func (s *Store) Find(idOrName string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loaded, err := s.load()
	if err != nil {
		return nil, err
	}
	if r := findRule(loaded, idOrName); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
}

// Add validates the rule, assigns an id if missing, and appends it. The name
// must be unique case-insensitively across the store.
func (s *Store) Add(rule *Rule) error {
	rule.normalize()
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.checkPermanentDelete(rule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range loaded {
		if strings.EqualFold(existing.Name, rule.Name) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, rule.Name)
		}
	}
	if rule.ID == "" {
		rule.ID = newRuleID()
	}

	return s.save(append(loaded, rule.Clone()))
}

// Replace swaps the stored rule with the same id for the given one.
func (s *Store) Replace(rule *Rule) error {
	rule.normalize()
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.checkPermanentDelete(rule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.load()
	if err != nil {
		return err
	}
	index := -1
	for i, existing := range loaded {
		if existing.ID == rule.ID {
			index = i
			continue
		}
		if strings.EqualFold(existing.Name, rule.Name) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, rule.Name)
		}
	}
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rule.ID)
	}

	loaded[index] = rule.Clone()
	return s.save(loaded)
}

// Delete removes the rule matching the given id or (case-insensitive) name.
func (s *Store) Delete(idOrName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.load()
	if err != nil {
		return err
	}
	target := findRule(loaded, idOrName)
	if target == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, idOrName)
	}

	remaining := make([]*Rule, 0, len(loaded)-1)
	for _, r := range loaded {
		if r != target {
			remaining = append(remaining, r)
		}
	}
	return s.save(remaining)
}

// SetEnabled flips the enabled flag on the rule matching id or name and
// returns the updated rule.
func (s *Store) SetEnabled(idOrName string, enabled bool) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.load()
	if err != nil {
		return nil, err
	}
	target := findRule(loaded, idOrName)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
	}

	target.Enabled = enabled
	if err := s.save(loaded); err != nil {
		return nil, err
	}
	return target.Clone(), nil
}

func (s *Store) checkPermanentDelete(rule *Rule) error {
	if rule.HasPermanentDelete() && !s.allowPermanentDelete {
		return fmt.Errorf("%w: rule %q", ErrPermanentDeleteDisabled, rule.Name)
	}
	return nil
}

// load reads and decodes the rule file. Individually invalid rules are logged
// and skipped so one bad entry does not take down the rest; a file that is
// not a JSON array at all fails the whole load.
func (s *Store) load() ([]*Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: s.path, Err: err}
	}

	loaded := make([]*Rule, 0, len(raw))
	for i, entry := range raw {
		var rule Rule
		if err := json.Unmarshal(entry, &rule); err != nil {
			s.logger.Warn("skipping undecodable rule", "path", s.path, "index", i, "error", err)
			continue
		}
		rule.normalize()
		if err := rule.Validate(); err != nil {
			s.logger.Warn("skipping invalid rule", "path", s.path, "index", i, "error", err)
			continue
		}
		loaded = append(loaded, &rule)
	}
	return loaded, nil
}

// save writes the full rule list atomically: marshal, write a temp file in
// the same directory, then rename over the target.
func (s *Store) save(rules []*Rule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return &IOError{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}

func findRule(loaded []*Rule, idOrName string) *Rule {
	for _, r := range loaded {
		if r.ID == idOrName {
			return r
		}
	}
	for _, r := range loaded {
		if strings.EqualFold(r.Name, idOrName) {
			return r
		}
	}
	return nil
}

func newRuleID() string {
	return uuid.New().String()
}
