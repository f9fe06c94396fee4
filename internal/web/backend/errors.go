package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a backend failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindValidation
	KindPermission
	KindNotFound
	KindConflict
	KindTooLarge
	KindUnsupported
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTooLarge:
		return "too_large"
	case KindUnsupported:
		return "unsupported"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ErrNoToken is wrapped by the error returned when no bearer token is available.
var ErrNoToken = errors.New("no authentication token")

// NoTokenMessage is shown when a call is attempted without a token.
const NoTokenMessage = "No authentication token available. Please log in."

// Error is a failed backend call. Message is safe to show to the operator.
type Error struct {
	Kind    Kind
	Op      Operation
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a backend error, or KindUnknown for other errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsAuth reports whether err means the session is no longer usable.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// Message returns the operator-facing text of err.
func Message(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func noTokenError(op Operation, cause error) *Error {
	err := ErrNoToken
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrNoToken, cause)
	}
	return &Error{Kind: KindAuth, Op: op, Message: NoTokenMessage, Err: err}
}

func transportError(op Operation, err error) *Error {
	return &Error{
		Kind:    KindTransient,
		Op:      op,
		Message: serverErrorMessage,
		Detail:  err.Error(),
		Err:     err,
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusRequestEntityTooLarge:
		return KindTooLarge
	case status == http.StatusUnsupportedMediaType:
		return KindUnsupported
	case status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

// statusError builds the error for a non-2xx response.
func statusError(op Operation, status int, contentType string, body []byte) *Error {
	detail := errorDetail(contentType, body)
	e := &Error{
		Kind:    kindForStatus(status),
		Op:      op,
		Status:  status,
		Message: op.message(status, detail),
		Detail:  detail,
	}
	if e.Detail == "" {
		e.Detail = op.fallback(status)
	}
	return e
}

// errorDetail extracts "detail", then "error", from a JSON body, or returns
// the trimmed text of any other body.
func errorDetail(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if strings.Contains(contentType, "json") || gjson.ValidBytes(body) {
		if !gjson.ValidBytes(body) {
			return ""
		}
		res := gjson.ParseBytes(body)
		if d := res.Get("detail"); d.Exists() {
			return detailText(d)
		}
		if e := res.Get("error"); e.Exists() {
			return e.String()
		}
		if res.Type == gjson.String {
			return res.String()
		}
		return ""
	}
	return strings.TrimSpace(string(body))
}

// detailText flattens validation detail lists into "msg; msg".
func detailText(d gjson.Result) string {
	if !d.IsArray() {
		return d.String()
	}
	var msgs []string
	d.ForEach(func(_, item gjson.Result) bool {
		if m := item.Get("msg"); m.Exists() {
			msgs = append(msgs, m.String())
		} else {
			msgs = append(msgs, item.String())
		}
		return true
	})
	return strings.Join(msgs, "; ")
}
