package middleware

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/luckyshop/server/internal/apperr"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError translates err into status, code and message. Unclassified errors are logged and answered
// as a generic 500 so internals never leak to the client.
func RespondError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindInternal {
		log.Printf("[http] internal error: %v", err)
		RespondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Message: "Something went wrong. Please try again later.",
			Error:   apperr.KindInternal.Code(),
		})
		return
	}
	RespondJSON(w, e.Kind.HTTPStatus(), ErrorResponse{Message: e.Message, Error: e.Kind.Code()})
}

func respondTooManyRequests(w http.ResponseWriter) {
	RespondJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Message: "Too many requests. Please try again later.",
		Error:   "Error_TooManyRequests",
	})
}
