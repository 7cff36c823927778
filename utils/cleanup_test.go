package utils_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/testutil"
	"github.com/swissaxa/portal/utils"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestSweepOrphanEvidence(t *testing.T) {
	db := testutil.NewDB(t)
	dir := t.TempDir()
	user := testutil.CreateUser(t, db, "sweep@example.com")

	kept := filepath.Join(dir, "kept.jpg")
	orphan := filepath.Join(dir, "orphan.jpg")
	young := filepath.Join(dir, "young.jpg")
	writeAged(t, kept, 2*time.Hour)
	writeAged(t, orphan, 2*time.Hour)
	writeAged(t, young, time.Minute)

	claim := models.Claim{UserID: user.ID, ClaimNumber: "CLM-20240101000000-ABCDEF", Status: models.ClaimStatusSubmitted}
	require.NoError(t, db.Omit("Media").Create(&claim).Error)
	require.NoError(t, db.Create(&models.ClaimMedia{ClaimID: claim.ID, Filename: "kept.jpg", FilePath: kept, MediaType: models.MediaTypePhoto}).Error)

	n, err := utils.SweepOrphanEvidence(db, dir, utils.OrphanGrace, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.FileExists(t, kept)
	assert.FileExists(t, young)
	assert.NoFileExists(t, orphan)
}

func TestSweepOrphanEvidenceMissingDir(t *testing.T) {
	db := testutil.NewDB(t)
	n, err := utils.SweepOrphanEvidence(db, filepath.Join(t.TempDir(), "absent"), utils.OrphanGrace, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartEvidenceSweeperRejectsBadSchedule(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := utils.StartEvidenceSweeper(db, t.TempDir(), "not a schedule")
	assert.Error(t, err)
}
