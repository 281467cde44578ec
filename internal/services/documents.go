package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docforge/eval-queue/internal/models"
	"github.com/docforge/eval-queue/internal/repository"
	"github.com/docforge/eval-queue/internal/storage"
	"github.com/docforge/eval-queue/internal/utils"
)

// ErrUnreadableDocument is returned when the uploaded bytes cannot be parsed
// as a paged document.
var ErrUnreadableDocument = errors.New("unreadable document")

// PageCounter derives the page count from raw document bytes.
type PageCounter func(data []byte) (int, error)

type DocumentService interface {
	// Ingest stores a document, deduplicating on content hash. A second upload
	// of byte-identical content returns the existing record with
	// AlreadyExists set and performs no writes.
	Ingest(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
	Get(ctx context.Context, id int64) (*models.DocumentDetail, error)
	List(ctx context.Context, limit int) ([]*models.Document, error)
}

type documentService struct {
	docs    repository.DocumentRepository
	tasks   repository.TaskRepository
	storage storage.Storage
	pages   PageCounter
	logger  *utils.Logger
}

func NewDocumentService(
	docs repository.DocumentRepository,
	tasks repository.TaskRepository,
	store storage.Storage,
	pages PageCounter,
	logger *utils.Logger,
) DocumentService {
	return &documentService{
		docs:    docs,
		tasks:   tasks,
		storage: store,
		pages:   pages,
		logger:  logger,
	}
}

func (s *documentService) Ingest(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	contentHash := hashContent(req.File)

	existing, err := s.docs.GetByHash(ctx, contentHash)
	if err == nil {
		s.logger.Info("Document already exists, skipping upload",
			"id", existing.ID,
			"content_hash", contentHash)
		return &models.UploadResponse{
			Document:      existing,
			AlreadyExists: true,
			Message:       "Document already exists, no re-upload needed",
		}, nil
	}
	if !errors.Is(err, repository.ErrDocumentNotFound) {
		s.logger.Error("Failed to look up document by hash", "error", err, "content_hash", contentHash)
		return nil, utils.NewInternalError("Failed to check for existing document")
	}

	// Parse before persisting anything so an unreadable upload leaves no row
	// and no stored file behind.
	totalPages, err := s.pages(req.File)
	if err != nil {
		s.logger.Warn("Rejecting unreadable document", "error", err, "filename", req.Filename)
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	storageKey := storedFilename(req.Filename, contentHash)
	storagePath, err := s.storage.Save(ctx, storageKey, req.File)
	if err != nil {
		s.logger.Error("Failed to store document", "error", err, "key", storageKey)
		return nil, utils.NewInternalError("Failed to store document")
	}

	doc := &models.Document{
		Filename:    req.Filename,
		StoragePath: storagePath,
		SizeBytes:   int64(len(req.File)),
		TotalPages:  totalPages,
		ContentHash: contentHash,
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		// A concurrent upload of the same content may have won the insert;
		// fall back to the existing row before giving up. Identical content
		// under the same filename lands on the winner's stored path, so only
		// delete when our write went somewhere else.
		if winner, lookupErr := s.docs.GetByHash(ctx, contentHash); lookupErr == nil {
			if storagePath != winner.StoragePath {
				_ = s.storage.Delete(ctx, storageKey)
			}
			return &models.UploadResponse{
				Document:      winner,
				AlreadyExists: true,
				Message:       "Document already exists, no re-upload needed",
			}, nil
		}

		s.logger.Error("Failed to save document record", "error", err, "filename", req.Filename)
		_ = s.storage.Delete(ctx, storageKey)
		return nil, utils.NewInternalError("Failed to save document metadata")
	}

	s.logger.Info("Document ingested",
		"id", doc.ID,
		"filename", doc.Filename,
		"total_pages", doc.TotalPages,
		"size_bytes", doc.SizeBytes,
		"content_hash", contentHash)

	return &models.UploadResponse{
		Document: doc,
		Message:  "Document uploaded successfully",
	}, nil
}

func (s *documentService) Get(ctx context.Context, id int64) (*models.DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return nil, utils.NewNotFoundError("Document not found")
	}
	if err != nil {
		s.logger.Error("Failed to get document", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve document")
	}

	tasks, err := s.tasks.List(ctx, models.TaskFilter{DocumentID: &id})
	if err != nil {
		s.logger.Error("Failed to list document tasks", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve document tasks")
	}

	return &models.DocumentDetail{Document: doc, Tasks: tasks}, nil
}

func (s *documentService) List(ctx context.Context, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = 50
	}

	docs, err := s.docs.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list documents", "error", err)
		return nil, utils.NewInternalError("Failed to list documents")
	}

	return docs, nil
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storedFilename keeps the original stem, tagged with a hash prefix so
// distinct contents with the same display name never collide.
func storedFilename(filename, contentHash string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%s%s", stem, contentHash[:8], ext)
}
