package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Evidence categories, one directory each under the upload root.
const (
	CategoryDocuments = "documents"
	CategoryPolicies  = "policies"
	CategoryClaims    = "claims"
)

var (
	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file exceeds upload size limit")
	// ErrEmptyFilename is returned for parts without a usable file name.
	ErrEmptyFilename = errors.New("file has no name")
	// ErrUnknownCategory is returned for categories outside the fixed set.
	ErrUnknownCategory = errors.New("unknown storage category")
)

// StoredFile is the result of a successful Save.
type StoredFile struct {
	// Filename is the sanitized original name as shown to the customer.
	Filename string
	// Path is where the bytes live; it is what the database stores.
	Path string
	Size int64
}

// EvidenceStore persists uploaded files.
type EvidenceStore interface {
	Save(fh *multipart.FileHeader, category string, owner uint) (StoredFile, error)
	Open(path string) (*os.File, error)
	Remove(path string) error
	Dir(category string) string
}

// LocalStore keeps files on the local filesystem under root/<category>/.
type LocalStore struct {
	root    string
	maxSize int64
	now     func() time.Time
}

// NewLocalStore creates the category directories under root. maxSize <= 0 disables the limit.
func NewLocalStore(root string, maxSize int64) (*LocalStore, error) {
	for _, c := range []string{CategoryDocuments, CategoryPolicies, CategoryClaims} {
		if err := os.MkdirAll(filepath.Join(root, c), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir %s: %w", c, err)
		}
	}
	return &LocalStore{root: root, maxSize: maxSize, now: time.Now}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SecureFilename reduces name to a safe base name. It returns "" when nothing usable is left.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if len(name) > 120 {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:120-len(ext)] + ext
	}
	return name
}

func validCategory(c string) bool {
	return c == CategoryDocuments || c == CategoryPolicies || c == CategoryClaims
}

// Dir returns the directory holding a category.
func (s *LocalStore) Dir(category string) string {
	return filepath.Join(s.root, category)
}

// Save copies the upload to root/<category>/<unixnano>_<owner>_<name>.
// A partially written file is removed on failure.
func (s *LocalStore) Save(fh *multipart.FileHeader, category string, owner uint) (StoredFile, error) {
	if !validCategory(category) {
		return StoredFile{}, ErrUnknownCategory
	}
	name := SecureFilename(fh.Filename)
	if name == "" {
		return StoredFile{}, ErrEmptyFilename
	}
	if s.maxSize > 0 && fh.Size > s.maxSize {
		return StoredFile{}, ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return StoredFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(s.Dir(category), fmt.Sprintf("%d_%d_%s", s.now().UnixNano(), owner, name))
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create %s: %w", dst, err)
	}

	var r io.Reader = src
	if s.maxSize > 0 {
		r = &io.LimitedReader{R: src, N: s.maxSize + 1}
	}
	written, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && written > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, ErrTooLarge) {
			return StoredFile{}, err
		}
		return StoredFile{}, fmt.Errorf("write %s: %w", dst, err)
	}
	return StoredFile{Filename: name, Path: dst, Size: written}, nil
}

// Open opens a stored file for reading. Paths outside the root are refused.
func (s *LocalStore) Open(path string) (*os.File, error) {
	if !s.contains(path) {
		return nil, os.ErrNotExist
	}
	return os.Open(path)
}

// Remove deletes a stored file. Missing files are not an error.
func (s *LocalStore) Remove(path string) error {
	if !s.contains(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) contains(path string) bool {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
