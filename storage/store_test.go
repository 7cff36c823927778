package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissaxa/portal/testutil"
)

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":                 "photo.jpg",
		"../../etc/passwd":          "passwd",
		`C:\Users\max\damage.png`:   "damage.png",
		"my claim photo (1).JPG":    "my_claim_photo_1_.JPG",
		"Schaden_Küche.mov":         "Schaden_K_che.mov",
		"...":                       "",
		"":                          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

func TestSaveWritesUnderCategory(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, 1024)
	require.NoError(t, err)

	fh := testutil.FileHeaders(t, testutil.File{Field: "media", Name: "kitchen.jpg", Content: []byte("jpeg-bytes")})[0]
	got, err := s.Save(fh, CategoryClaims, 42)
	require.NoError(t, err)

	assert.Equal(t, "kitchen.jpg", got.Filename)
	assert.Equal(t, filepath.Join(root, CategoryClaims), filepath.Dir(got.Path))
	assert.True(t, strings.HasSuffix(got.Path, "_42_kitchen.jpg"))
	assert.Equal(t, int64(10), got.Size)

	f, err := s.Open(got.Path)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(b))
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, 4)
	require.NoError(t, err)

	fh := testutil.FileHeaders(t, testutil.File{Field: "file", Name: "big.pdf", Content: []byte("0123456789")})[0]
	_, err = s.Save(fh, CategoryDocuments, 1)
	assert.True(t, errors.Is(err, ErrTooLarge))

	entries, err := os.ReadDir(filepath.Join(root, CategoryDocuments))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectsUnknownCategoryAndEmptyName(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 0)
	require.NoError(t, err)

	fh := testutil.FileHeaders(t, testutil.File{Field: "file", Name: "a.txt", Content: []byte("x")})[0]
	_, err = s.Save(fh, "avatars", 1)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	fh.Filename = "///"
	_, err = s.Save(fh, CategoryDocuments, 1)
	assert.ErrorIs(t, err, ErrEmptyFilename)
}

func TestOpenAndRemoveStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(filepath.Join(root, "uploads"), 0)
	require.NoError(t, err)

	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("top secret"), 0o644))

	_, err = s.Open(outside)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = s.Open(filepath.Join(root, "uploads", "..", "secret.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, s.Remove(outside))
	_, err = os.Stat(outside)
	assert.NoError(t, err, "file outside the root must survive Remove")

	require.NoError(t, s.Remove(filepath.Join(root, "uploads", "claims", "missing.jpg")))
}
