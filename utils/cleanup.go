package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/models"
)

// OrphanGrace is how old an unreferenced claim file must be before the sweeper removes it.
// Intake writes files before the claim transaction commits, so young files may still be claimed.
const OrphanGrace = time.Hour

// SweepOrphanEvidence deletes files under dir older than grace that no ClaimMedia row references.
// It returns the number of removed files.
func SweepOrphanEvidence(db *gorm.DB, dir string, grace time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < grace {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var refs int64
		if err := db.Model(&models.ClaimMedia{}).Where("file_path = ?", path).Count(&refs).Error; err != nil {
			return removed, err
		}
		if refs > 0 {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			Sugar.Warnf("evidence sweeper: remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// StartEvidenceSweeper schedules SweepOrphanEvidence on a cron spec such as "@every 30m".
// The caller stops the returned cron on shutdown.
func StartEvidenceSweeper(db *gorm.DB, dir, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := SweepOrphanEvidence(db, dir, OrphanGrace, time.Now())
		if err != nil {
			Sugar.Warnf("evidence sweeper failed: %v", err)
			return
		}
		if n > 0 {
			Sugar.Infof("evidence sweeper removed %d orphan files", n)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
