package controllers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/storage"
	"github.com/swissaxa/portal/utils"
)

const pdfExcerptRunes = 1500

// DocumentController stores, tags and serves customer documents.
type DocumentController struct {
	db      *gorm.DB
	advisor ai.Advisor
	store   storage.EvidenceStore
	tracker services.EventTracker
}

func NewDocumentController(db *gorm.DB, advisor ai.Advisor, store storage.EvidenceStore, tracker services.EventTracker) *DocumentController {
	return &DocumentController{db: db, advisor: advisor, store: store, tracker: tracker}
}

// List returns the user's documents, newest first, paginated.
func (d *DocumentController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	q := d.db.Model(&models.Document{}).Where("user_id = ?", userID)
	if t := strings.TrimSpace(ctx.Query("type")); t != "" {
		q = q.Where("document_type = ?", t)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to count documents")
		return
	}
	var docs []models.Document
	if err := q.Order("uploaded_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&docs).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to retrieve documents")
		return
	}
	utils.Success(ctx, gin.H{"items": docs, "pagination": pagination(page, pageSize, total)})
}

// Upload stores a document. An empty or "auto" document_type asks the advisor for a tag.
func (d *DocumentController) Upload(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil || fh.Filename == "" {
		utils.Error(ctx, http.StatusBadRequest, 40040, "no file provided")
		return
	}

	stored, err := d.store.Save(fh, storage.CategoryDocuments, userID)
	if err != nil {
		respondStorageError(ctx, err)
		return
	}

	docType := strings.ToLower(strings.TrimSpace(ctx.PostForm("document_type")))
	autoTagged := false
	if docType == "" || docType == "auto" {
		excerpt := ""
		if services.IsPDF(stored.Filename) {
			if excerpt, err = services.PDFExcerpt(stored.Path, pdfExcerptRunes); err != nil {
				utils.Logger.Debug("pdf excerpt unavailable", zap.String("file", stored.Filename), zap.Error(err))
				excerpt = ""
			}
		}
		docType = d.advisor.TagDocument(userContext(ctx, userID), stored.Filename, excerpt).Tag
		autoTagged = true
	} else {
		docType = utils.SanitizeText(docType, 100)
	}
	if docType == "" {
		docType = ai.TagGeneral
	}

	doc := models.Document{
		UserID:       userID,
		Filename:     stored.Filename,
		FilePath:     stored.Path,
		DocumentType: docType,
	}
	if err := d.db.Create(&doc).Error; err != nil {
		_ = d.store.Remove(stored.Path)
		utils.Logger.Error("save document failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to save document")
		return
	}

	if d.tracker != nil {
		d.tracker.Track(ctx.Request.Context(), services.Event{
			Type:     services.EventDocumentUploaded,
			Name:     docType,
			UserID:   &userID,
			Metadata: map[string]any{"size": stored.Size, "auto_tagged": autoTagged},
		})
	}

	message := "Document uploaded successfully"
	if autoTagged {
		message = fmt.Sprintf("Document uploaded and automatically tagged as: %s", tagLabel(docType))
	}
	utils.Created(ctx, message, gin.H{"document": doc, "auto_tagged": autoTagged})
}

// tagLabel renders repair_invoice as "Repair Invoice".
func tagLabel(tag string) string {
	words := strings.Fields(strings.ReplaceAll(tag, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Download streams a document to its owner. Other users get 403 without file content.
func (d *DocumentController) Download(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid document id")
		return
	}

	var doc models.Document
	if err := d.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "document not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to load document")
		return
	}
	if doc.UserID != userID {
		utils.Logger.Warn("foreign document download refused", zap.Uint("user_id", userID), zap.Uint("document_id", doc.ID))
		utils.Error(ctx, http.StatusForbidden, 40310, "unauthorized access")
		return
	}

	f, err := d.store.Open(doc.FilePath)
	if err != nil {
		utils.Logger.Error("open document failed", zap.Uint("document_id", doc.ID), zap.Error(err))
		utils.Error(ctx, http.StatusNotFound, 40441, "document file missing")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to read document")
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(doc.Filename))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	ctx.DataFromReader(http.StatusOK, info.Size(), ctype, f, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}),
	})
}

// Tag classifies a filename without uploading anything.
func (d *DocumentController) Tag(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		Filename string `json:"filename"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Filename) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40042, "filename required")
		return
	}
	tag := d.advisor.TagDocument(userContext(ctx, userID), storage.SecureFilename(req.Filename), "")
	utils.Success(ctx, gin.H{"document_type": tag.Tag, "used_fallback": tag.UsedFallback})
}
