package validator

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/deepakselfhelp/deepak-payments/api/apicommon"
	"github.com/deepakselfhelp/deepak-payments/errors"
	"go.vocdoni.io/dvote/log"
)

// Decode reads the JSON request body into model and validates it. On
// failure the error response is written and false is returned: a body that
// is not JSON is ErrMalformedBody, a field that fails its tag is
// ErrInvalidData with the field errors as data.
func (v *Validator) Decode(w http.ResponseWriter, r *http.Request, model any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, apicommon.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(model); err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return false
	}
	if err := v.Validate(model); err != nil {
		var validationErrors ValidationErrors
		if !stderrors.As(err, &validationErrors) {
			errors.ErrGenericInternalServerError.WithErr(err).Write(w)
			return false
		}
		log.Debugw("validation errors", "path", r.URL.Path, "errors", validationErrors)
		errors.ErrInvalidData.WithErr(validationErrors).WithData(validationErrors).Write(w)
		return false
	}
	return true
}
