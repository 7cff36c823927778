// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/models"
)

var dbSeq atomic.Int64

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:portal_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// File is one part of a multipart upload.
type File struct {
	Field   string
	Name    string
	Content []byte
}

// MultipartBody encodes fields and files as multipart/form-data and returns the body and content type.
func MultipartBody(t *testing.T, fields map[string]string, files ...File) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

// FileHeaders builds multipart file headers the way net/http does for a real upload.
func FileHeaders(t *testing.T, files ...File) []*multipart.FileHeader {
	t.Helper()
	body, ctype := MultipartBody(t, nil, files...)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ctype)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}
	var out []*multipart.FileHeader
	for _, f := range files {
		for _, fh := range req.MultipartForm.File[f.Field] {
			if fh.Filename == f.Name && !contains(out, fh) {
				out = append(out, fh)
				break
			}
		}
	}
	return out
}

func contains(list []*multipart.FileHeader, fh *multipart.FileHeader) bool {
	for _, x := range list {
		if x == fh {
			return true
		}
	}
	return false
}

// CreateUser inserts a customer with the given email.
func CreateUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	u := models.User{Email: email, FirstName: "Test", LastName: strings.Split(email, "@")[0], Language: "en"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
