package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docforge/eval-queue/internal/models"
	"github.com/docforge/eval-queue/internal/services"
	"github.com/docforge/eval-queue/internal/utils"
	"github.com/gorilla/mux"
)

type DocumentHandler struct {
	service       services.DocumentService
	maxUploadSize int64
	logger        *utils.Logger
}

func NewDocumentHandler(service services.DocumentService, maxUploadSize int64, logger *utils.Logger) *DocumentHandler {
	return &DocumentHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	// Check Content-Length header first to reject oversized requests early
	if r.ContentLength > h.maxUploadSize {
		respondError(w, h.logger, utils.NewBadRequestError(h.sizeLimitMessage()))
		return
	}

	// Limit the request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			respondError(w, h.logger, utils.NewBadRequestError(h.sizeLimitMessage()))
			return
		}
		respondError(w, h.logger, utils.NewBadRequestError("Invalid form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("No file provided"))
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		respondError(w, h.logger, utils.NewBadRequestError("Only PDF files are allowed"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		respondError(w, h.logger, utils.NewInternalError("Failed to read file"))
		return
	}

	if int64(len(data)) > h.maxUploadSize {
		respondError(w, h.logger, utils.NewBadRequestError(h.sizeLimitMessage()))
		return
	}

	if len(data) == 0 {
		respondError(w, h.logger, utils.NewBadRequestError("Uploaded file is empty"))
		return
	}

	resp, err := h.service.Ingest(r.Context(), &models.UploadRequest{
		File:     data,
		Filename: header.Filename,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if resp.AlreadyExists {
		status = http.StatusOK
	}
	respondJSON(w, h.logger, status, resp)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid document ID"))
		return
	}

	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, doc)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	docs, err := h.service.List(r.Context(), limit)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"total":     len(docs),
		"documents": docs,
	})
}

func (h *DocumentHandler) sizeLimitMessage() string {
	return fmt.Sprintf("File size exceeds %dMB limit", h.maxUploadSize>>20)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return defaultValue
}
