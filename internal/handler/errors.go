package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/boutique-catalog/internal/domain/auth"
	"github.com/xenking/boutique-catalog/internal/domain/product"
)

// writeError maps domain errors to status codes. Gateway and storage details
// are logged and never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())

	var verr *product.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, encodeProblem(http.StatusBadRequest, verr.Reason, "", verr.Field))
	case errors.Is(err, product.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "product not found", "")
	case errors.Is(err, auth.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "unauthorized", "")
	case errors.Is(err, product.ErrUploadFailed):
		lg.Error("Image upload failed", zap.Error(err))
		writeProblem(w, http.StatusBadGateway, "image upload failed", "")
	case errors.Is(err, product.ErrStorageUnavailable):
		lg.Error("Storage unavailable", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "storage unavailable", "")
	default:
		lg.Error("Unexpected error", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "internal server error", "")
	}
}
