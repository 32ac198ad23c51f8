package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/workbench/internal/model"
)

// ErrInvalidAccount is returned for a slug that is empty or escapes the root.
var ErrInvalidAccount = eris.New("artifact: invalid account slug")

// Store reads per-account artifacts under a single accounts root. It never
// caches: every call re-lists the directory so a file written by an external
// agent is visible on the next call.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given accounts directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the accounts root directory.
func (s *Store) Root() string {
	return s.root
}

// AccountDir returns the directory owned by account.
func (s *Store) AccountDir(account string) (string, error) {
	if account == "" || account == "." || account == ".." ||
		strings.ContainsAny(account, `/\`) {
		return "", eris.Wrapf(ErrInvalidAccount, "%q", account)
	}
	return filepath.Join(s.root, account), nil
}

// CategoryDir returns the directory holding artifacts of category c for account.
func (s *Store) CategoryDir(account string, c model.Category) (string, error) {
	dir, err := s.AccountDir(account)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Dir), nil
}

// Resolution is the outcome of a batch load. Files that failed to decode are
// reported in Skipped rather than aborting the load.
type Resolution struct {
	Artifacts []model.Artifact
	Skipped   []*DecodeError
}

// SkippedCount returns the number of files that failed to decode.
func (r *Resolution) SkippedCount() int {
	if r == nil {
		return 0
	}
	return len(r.Skipped)
}

// entry is one filename that belongs to a category, with its parsed timestamp.
type entry struct {
	name string
	path string
	ts   time.Time
}

// ResolveLatest returns the newest artifact of category for account. A
// missing or empty directory yields (nil, nil). When the newest file fails to
// decode the result is (nil, *DecodeError): older files are not consulted, so
// stale data is never served as current.
func (s *Store) ResolveLatest(account, category string) (*model.Artifact, error) {
	c, err := Lookup(category)
	if err != nil {
		return nil, err
	}
	entries, err := s.list(account, c)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	newest := entries[0]
	a, err := DecodeFile(c, newest.path)
	if err != nil {
		zap.L().Warn("artifact: newest file failed to decode",
			zap.String("account", account),
			zap.String("category", category),
			zap.String("path", newest.path),
			zap.Error(err),
		)
		return nil, err
	}
	a.Account = account
	a.Timestamp = newest.ts
	return a, nil
}

// ResolveAll decodes every artifact of category for account, newest first.
// Files that fail to decode are skipped and listed in the Resolution.
func (s *Store) ResolveAll(account, category string) (*Resolution, error) {
	c, err := Lookup(category)
	if err != nil {
		return nil, err
	}
	entries, err := s.list(account, c)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Artifacts: make([]model.Artifact, 0, len(entries))}
	for _, e := range entries {
		a, err := DecodeFile(c, e.path)
		if err != nil {
			var de *DecodeError
			if !errors.As(err, &de) {
				de = &DecodeError{Path: e.path, Err: err}
			}
			res.Skipped = append(res.Skipped, de)
			continue
		}
		a.Account = account
		a.Timestamp = e.ts
		res.Artifacts = append(res.Artifacts, *a)
	}

	if len(res.Skipped) > 0 {
		zap.L().Debug("artifact: skipped undecodable files",
			zap.String("account", account),
			zap.String("category", category),
			zap.Int("skipped", len(res.Skipped)),
		)
	}
	return res, nil
}

// list returns the files of category c for account sorted newest first by
// the timestamp parsed from each filename. Directory listing order is never
// trusted.
func (s *Store) list(account string, c model.Category) ([]entry, error) {
	dir, err := s.CategoryDir(account, c)
	if err != nil {
		return nil, err
	}

	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "artifact: list %s", dir)
	}

	entries := make([]entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		ts, ok := timestampPart(c, de.Name())
		if !ok {
			continue
		}
		t, ok := ParseTimestamp(ts)
		if !ok {
			zap.L().Debug("artifact: unparseable filename timestamp",
				zap.String("dir", dir),
				zap.String("name", de.Name()),
			)
			continue
		}
		entries = append(entries, entry{name: de.Name(), path: filepath.Join(dir, de.Name()), ts: t})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ts.Equal(entries[j].ts) {
			return entries[i].ts.After(entries[j].ts)
		}
		return entries[i].name > entries[j].name
	})
	checkNameOrder(dir, entries)
	return entries, nil
}

// checkNameOrder warns when filename order disagrees with timestamp order,
// which means agents are mixing timestamp shapes in one directory.
func checkNameOrder(dir string, entries []entry) {
	for i := 1; i < len(entries); i++ {
		if entries[i-1].name < entries[i].name {
			zap.L().Warn("artifact: filename order differs from timestamp order",
				zap.String("dir", dir),
				zap.String("newer", entries[i-1].name),
				zap.String("older", entries[i].name),
			)
			return
		}
	}
}

// ListAccounts returns every immediate subdirectory of the root, sorted.
// A missing root yields an empty list.
func (s *Store) ListAccounts() ([]string, error) {
	des, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, eris.Wrapf(err, "artifact: list accounts in %s", s.root)
	}
	accounts := make([]string, 0, len(des))
	for _, de := range des {
		if de.IsDir() {
			accounts = append(accounts, de.Name())
		}
	}
	sort.Strings(accounts)
	return accounts, nil
}

// DetectCapabilities reports which integrations have a raw snapshot for
// account. It is a display signal only.
func (s *Store) DetectCapabilities(account string) (map[string]bool, error) {
	dir, err := s.AccountDir(account)
	if err != nil {
		return nil, err
	}
	caps := make(map[string]bool, len(rawFiles))
	for name, file := range rawFiles {
		info, err := os.Stat(filepath.Join(dir, "raw", file))
		caps[name] = err == nil && !info.IsDir()
	}
	return caps, nil
}

// LoadRaw decodes the raw snapshot for an integration. A missing file yields
// (nil, nil).
func (s *Store) LoadRaw(account, integration string) (map[string]any, error) {
	file, ok := rawFiles[integration]
	if !ok {
		return nil, eris.Errorf("artifact: unknown integration %q", integration)
	}
	dir, err := s.AccountDir(account)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "raw", file)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &DecodeError{Path: path, Err: err}
	}
	rec, err := DecodeStructured(path, data)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return rec, nil
}

// LoadGongCalls returns the calls list from the raw Gong snapshot, or an
// empty list when there is none.
func (s *Store) LoadGongCalls(account string) ([]map[string]any, error) {
	rec, err := s.LoadRaw(account, IntegrationGong)
	if err != nil || rec == nil {
		return []map[string]any{}, err
	}
	raw, _ := rec["calls"].([]any)
	calls := make([]map[string]any, 0, len(raw))
	for _, c := range raw {
		if m, ok := c.(map[string]any); ok {
			calls = append(calls, m)
		}
	}
	return calls, nil
}

// CategoryStatus summarises one category directory for an account.
type CategoryStatus struct {
	Category model.Category `json:"category"`
	Count    int            `json:"count"`
	Latest   *time.Time     `json:"latest,omitempty"`
}

// Overview lists every registered category with its file count and newest
// timestamp. Nothing is decoded.
func (s *Store) Overview(account string) ([]CategoryStatus, error) {
	cats := Categories()
	out := make([]CategoryStatus, 0, len(cats))
	for _, c := range cats {
		entries, err := s.list(account, c)
		if err != nil {
			return nil, err
		}
		st := CategoryStatus{Category: c, Count: len(entries)}
		if len(entries) > 0 {
			t := entries[0].ts
			st.Latest = &t
		}
		out = append(out, st)
	}
	return out, nil
}

// NewPath returns the path a new artifact of category for account, stamped
// at t, should be written to.
func (s *Store) NewPath(account, category string, t time.Time) (string, error) {
	c, err := Lookup(category)
	if err != nil {
		return "", err
	}
	dir, err := s.CategoryDir(account, c)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, Filename(c, t)), nil
}

// Import validates src against category and writes it under the canonical
// name for t. Structured files are re-encoded in the category's extension.
func (s *Store) Import(account, category, src string, t time.Time) (*model.Artifact, error) {
	c, err := Lookup(category)
	if err != nil {
		return nil, err
	}
	a, err := DecodeFile(c, src)
	if err != nil {
		return nil, err
	}
	path, err := s.NewPath(account, category, t)
	if err != nil {
		return nil, err
	}

	if c.Format == model.FormatDocument {
		err = EncodeDocument(path, a.Document)
	} else {
		err = EncodeStructured(path, a.Record)
	}
	if err != nil {
		return nil, err
	}

	a.Account = account
	a.Path = path
	a.Timestamp = t.UTC().Truncate(time.Second)
	zap.L().Debug("artifact: imported", zap.String("src", src), zap.String("path", path))
	return a, nil
}
