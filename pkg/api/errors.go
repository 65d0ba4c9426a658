package api

import (
	"errors"
	"net/http"

	"github.com/labrinth-go/labrinth/pkg/httputil"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/observability"
)

// writeError maps the loader field error taxonomy onto HTTP responses.
// Storage and unexpected errors are logged; their text never reaches the
// client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs *loaderfields.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeInvalidInput, "one or more fields are invalid", verrs.Errors)
	case errors.Is(err, loaderfields.ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, loaderfields.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, loaderfields.ErrStorage):
		observability.FromContext(r.Context()).WithError(err).Warn("Storage unavailable")
		httputil.WriteServiceUnavailable(w, "storage temporarily unavailable, retry the request")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
