package upload

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/util"
)

const (
	idTimeLayout = "20060102-150405"
	cacheFile    = "cache.json"
	fileDir      = "file"
	unpackedDir  = "unpacked"
	rebuildDir   = "file_new"
)

var (
	idPattern = regexp.MustCompile(`^\d{8}-\d{6}_[0-9a-f]{32}$`)
	// Entries the sweeper may touch: live workspaces and ones already
	// renamed for deletion.
	sweepPattern = regexp.MustCompile(`^(\d{8}-\d{6})_[0-9a-f]{32}(` + util.DeletedMarker + `\d+-[0-9a-f]{8})?$`)
)

// ValidID reports whether id has the exact shape of an upload id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Session is the workspace of one upload.
type Session struct {
	ID  string
	Dir string
}

func (s *Session) FileDir() string     { return filepath.Join(s.Dir, fileDir) }
func (s *Session) UnpackedDir() string { return filepath.Join(s.Dir, unpackedDir) }
func (s *Session) RebuildDir() string  { return filepath.Join(s.Dir, rebuildDir) }
func (s *Session) cachePath() string   { return filepath.Join(s.Dir, cacheFile) }

// ZipPath resolves the workspace-relative archive path of state.
func (s *Session) ZipPath(state *models.UploadState) string {
	return filepath.Join(s.Dir, filepath.FromSlash(state.ZipPath))
}

// SessionStore owns the upload workspaces below a root directory.
type SessionStore struct {
	root   string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewSessionStore(root string, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{root: root, ttl: ttl, logger: logger, now: time.Now}
}

// Root is the directory holding all workspaces.
func (st *SessionStore) Root() string { return st.root }

func newID(now time.Time) string {
	u := uuid.New()
	return now.UTC().Format(idTimeLayout) + "_" + hex.EncodeToString(u[:])
}

// Create allocates a new, empty workspace.
func (st *SessionStore) Create() (*Session, error) {
	if err := os.MkdirAll(st.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	id := newID(st.now())
	sess := &Session{ID: id, Dir: filepath.Join(st.root, id)}
	if err := os.Mkdir(sess.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := os.Mkdir(sess.FileDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return sess, nil
}

// Open returns the workspace of id. Malformed, unknown and expired ids
// yield ErrSessionNotFound.
func (st *SessionStore) Open(id string) (*Session, error) {
	if !ValidID(id) {
		return nil, ErrSessionNotFound
	}
	if st.expired(id) {
		return nil, ErrSessionNotFound
	}
	sess := &Session{ID: id, Dir: filepath.Join(st.root, id)}
	info, err := os.Stat(sess.Dir)
	if err != nil || !info.IsDir() {
		return nil, ErrSessionNotFound
	}
	if !util.Exists(sess.cachePath()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (st *SessionStore) expired(name string) bool {
	m := sweepPattern.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	created, err := time.ParseInLocation(idTimeLayout, m[1], time.UTC)
	if err != nil {
		return true
	}
	return st.ttl > 0 && st.now().Sub(created) > st.ttl
}

// LoadState reads the cached state of sess.
func (st *SessionStore) LoadState(sess *Session) (*models.UploadState, error) {
	raw, err := os.ReadFile(sess.cachePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read upload cache: %w", err)
	}
	var state models.UploadState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode upload cache: %w", err)
	}
	if state.Data.Phases == nil {
		state.Data.Phases = make(map[string]models.PhaseTiming)
	}
	return &state, nil
}

// SaveState replaces the cached state of sess atomically.
func (st *SessionStore) SaveState(sess *Session, state *models.UploadState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode upload cache: %w", err)
	}
	tmp := sess.cachePath() + "." + util.RandomToken(8) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write upload cache: %w", err)
	}
	if err := os.Rename(tmp, sess.cachePath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace upload cache: %w", err)
	}
	return nil
}

// Dispose removes the workspace of id. A workspace that is already gone
// is not an error.
func (st *SessionStore) Dispose(id string) error {
	if !ValidID(id) {
		return ErrSessionNotFound
	}
	return util.RemoveAllSafely(filepath.Join(st.root, id))
}

// Sweep deletes workspaces that were left half-deleted or that are older
// than the TTL. Anything not named like a workspace is left alone.
func (st *SessionStore) Sweep() (int, error) {
	entries, err := os.ReadDir(st.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list uploads: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		m := sweepPattern.FindStringSubmatch(e.Name())
		if m == nil || !e.IsDir() {
			continue
		}
		p := filepath.Join(st.root, e.Name())
		switch {
		case m[2] != "":
			err = os.RemoveAll(p)
		case st.expired(e.Name()):
			err = util.RemoveAllSafely(p)
		default:
			continue
		}
		if err != nil {
			st.logger.Warn("failed to sweep upload workspace", zap.String("path", p), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		st.logger.Info("swept upload workspaces", zap.Int("removed", removed))
	}
	return removed, errors.Join(errs...)
}
