package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docforge/eval-queue/internal/models"
	"github.com/jmoiron/sqlx"
)

// ErrDocumentNotFound is returned when a document id or hash resolves to no row.
var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	GetByHash(ctx context.Context, contentHash string) (*models.Document, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Document, error)
	IncrementEvalCount(ctx context.Context, id int64) error
}

type documentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) DocumentRepository {
	return &documentRepository{db: db}
}

const documentColumns = `id, filename, storage_path, size_bytes, total_pages, content_hash, uploaded_at, eval_count`

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (filename, storage_path, size_bytes, total_pages, content_hash, uploaded_at, eval_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.ExecContext(ctx, query,
		doc.Filename,
		doc.StoragePath,
		doc.SizeBytes,
		doc.TotalPages,
		doc.ContentHash,
		doc.UploadedAt,
		doc.EvalCount,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read document id: %w", err)
	}
	doc.ID = id

	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	return r.scanDocument(r.db.QueryRowContext(ctx, query, id))
}

func (r *documentRepository) GetByHash(ctx context.Context, contentHash string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = ?`
	return r.scanDocument(r.db.QueryRowContext(ctx, query, contentHash))
}

func (r *documentRepository) ListRecent(ctx context.Context, limit int) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY uploaded_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := r.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (r *documentRepository) IncrementEvalCount(ctx context.Context, id int64) error {
	query := `UPDATE documents SET eval_count = eval_count + 1 WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment eval count: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *documentRepository) scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document

	err := row.Scan(
		&doc.ID,
		&doc.Filename,
		&doc.StoragePath,
		&doc.SizeBytes,
		&doc.TotalPages,
		&doc.ContentHash,
		&doc.UploadedAt,
		&doc.EvalCount,
	)
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	return &doc, nil
}
