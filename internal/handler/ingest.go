package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/refnexus/platform/internal/service"
)

const maxUploadBytes = 2 << 20

// ImportHandler serves schedule uploads.
type ImportHandler struct {
	ingest *service.IngestService
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(svc *service.IngestService) *ImportHandler {
	return &ImportHandler{ingest: svc}
}

// Import handles POST /leagues/me/ingest. The raw body is the file; the
// format comes from ?format= or the Content-Type header.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := newQueryParser(r)
	useAI := q.Bool("use_ai")
	if err := q.Err(); err != nil {
		RespondError(w, r, err)
		return
	}
	format, ok := ingest.DetectFormat(q.Text("format"), r.Header.Get("Content-Type"))
	if !ok {
		RespondError(w, r, domain.ErrValidationField("format", "format must be csv, tsv, json, xlsx or text"))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			RespondError(w, r, domain.ErrValidationField("file", "upload exceeds 2 MiB"))
			return
		}
		RespondError(w, r, domain.ErrValidationField("file", "could not read upload"))
		return
	}

	res, err := h.ingest.Import(r.Context(), p.UserID, service.IngestInput{Format: format, Data: data, UseAI: useAI})
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}
