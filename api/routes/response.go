package routes

import (
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func handleJSON(w http.ResponseWriter, r *http.Request, data interface{}) {
	render.JSON(w, r, data)
}

// handleErrorType logs err and responds with code.  Client errors carry the message, server
// errors a generic one.
func handleErrorType(w http.ResponseWriter, r *http.Request, err error, code int, logger *zap.SugaredLogger) {
	message := "An error occured on the server while processing the request"
	if code < http.StatusInternalServerError {
		logger.Warnf("%v", err)
		message = err.Error()
	} else {
		logger.Errorf("%+v", err)
	}
	render.Status(r, code)
	render.JSON(w, r, ErrorResponse{Error: message})
}
