package response

import "fmt"

// Kind is the machine-readable classification of an API error, so the
// frontend can react to the category instead of parsing messages
type Kind string

// Defining the error taxonomy
const (
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindIneligible        Kind = "ineligible"
	KindUpstream          Kind = "upstream"
	KindUnauthorized      Kind = "unauthorized"
	KindBadRequest        Kind = "bad_request"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

type Error struct {
	StatusCode int         `json:"-"`
	Kind       Kind        `json:"kind"`
	Message    string      `json:"message"`
	Messages   []string    `json:"messages"`
	Result     interface{} `json:"result"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) AddMessages(msgs ...string) *Error {
	e.Messages = append(e.Messages, msgs...)
	return e
}

func (e *Error) WithResult(result interface{}) *Error {
	e.Result = result
	return e
}

func makeError(status int, kind Kind) *Error {
	return &Error{
		StatusCode: status,
		Kind:       kind,
		Messages:   make([]string, 0),
		Result:     []string{},
	}
}

// -----------------------------------------------

func ErrUnexpected() *Error {
	return makeError(500, KindInternal).
		WithMessage("An unexpected error has occured")
}

func ErrBadRequest() *Error {
	return makeError(400, KindBadRequest).
		WithMessage("Bad request")
}

func ErrUnauthorized() *Error {
	return makeError(401, KindUnauthorized).
		WithMessage("Unauthorized")
}

func ErrForbidden() *Error {
	return makeError(403, KindUnauthorized).
		WithMessage("Forbidden")
}

func ErrNotFound() *Error {
	return makeError(404, KindNotFound).
		WithMessage("Requested resources not found")
}

func ErrConflict() *Error {
	return makeError(409, KindConflict).
		WithMessage("Conflict")
}

// ErrInvalidTransition signals that the requested state change is not
// reachable from the entity's current state. The current state rides along
// in Result so the caller can react
func ErrInvalidTransition(current string) *Error {
	return makeError(409, KindInvalidTransition).
		WithMessage("Invalid transition from current state").
		WithResult(map[string]string{"currentState": current})
}

// ErrIneligible signals that a domain rule blocks the action even though the
// state machine would allow it (return window expired, quota exceeded)
func ErrIneligible(reason string) *Error {
	return makeError(422, KindIneligible).
		WithMessage(reason)
}

// ErrUpstream signals a collaborator (payment/carrier) failure. The entity
// state is unchanged and the request is retryable
func ErrUpstream() *Error {
	return makeError(502, KindUpstream).
		WithMessage("Upstream collaborator failed, please retry")
}

func ErrInvalidJson() *Error {
	return ErrBadRequest().AddMessages("Invalid JSON body")
}

func ErrVerifyToken() *Error {
	return ErrUnexpected().AddMessages("Unable to verify login token")
}

func ErrNoBearer() *Error {
	return ErrUnauthorized().AddMessages("No valid Bearer token found in header")
}
