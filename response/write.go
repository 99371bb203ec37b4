package response

import (
	"encoding/json"
	"net/http"
)

type successBody struct {
	Result   interface{} `json:"result"`
	Messages []string    `json:"messages"`
}

type errorBody struct {
	Error *Error `json:"error"`
}

// WriteResponse will write the result as the standard JSON envelope
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(successBody{
		Result:   result,
		Messages: []string{},
	})
}

// WriteError will write the error envelope with the appropriate status code
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(errorBody{
		Error: e,
	})
}
