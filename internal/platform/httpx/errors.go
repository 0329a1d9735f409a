package httpx

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Error responds with a problem document carrying the error message at the
// given status. 5xx responses hide the underlying message.
func Error(w http.ResponseWriter, status int, err error) {
	detail := ""
	if err != nil && status < http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, http.StatusText(status), detail)
}

// ValidationProblem reports validator.v10 field errors as a 400 problem.
func ValidationProblem(w http.ResponseWriter, err error) {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		Problem(w, http.StatusBadRequest, "Validation Failed", first.Field()+" failed "+first.Tag())
		return
	}
	Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
}
