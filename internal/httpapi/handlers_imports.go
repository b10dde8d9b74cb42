package httpapi

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"runcore/internal/ingest"
	"runcore/internal/platform/apperror"
)

// uploadImport accepts a multipart GPX/FIT upload (spec §6: "multipart,
// <=20 MiB, ext in {.gpx, .fit}") and hands the raw bytes to the import
// pipeline for asynchronous processing.
func (h *handlers) uploadImport(w http.ResponseWriter, r *http.Request) {
	userID, _ := currentUserID(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxImportUploadBytes)
	if err := r.ParseMultipartForm(maxImportUploadBytes); err != nil {
		apperror.WriteHTTP(w, apperror.New(apperror.CodeUploadTooLarge, "upload exceeds 20 MiB limit"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "missing file field", "file"))
		return
	}
	defer file.Close()

	var source ingest.Source
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".gpx":
		source = ingest.SourceGPXUpload
	case ".fit":
		source = ingest.SourceFITUpload
	default:
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "file extension must be .gpx or .fit", "file"))
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		apperror.WriteHTTP(w, apperror.New(apperror.CodeUploadTooLarge, "upload exceeds 20 MiB limit"))
		return
	}

	imp, err := h.deps.Imports.Submit(r.Context(), userID, source, payload)
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"import_id": imp.ID, "status": imp.Status})
}
