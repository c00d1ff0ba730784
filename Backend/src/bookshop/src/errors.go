package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Store outcomes. The HTTP layer never inspects SQL errors directly; the
// repository maps everything onto these sentinels.
var (
	// ErrNotFound is returned when no entity matches a well-formed key.
	ErrNotFound = errors.New("bookshop: entity not found")

	// ErrAlreadyExists is returned when a create collides with an existing key.
	ErrAlreadyExists = errors.New("bookshop: entity already exists")

	// ErrSoldOut is returned when a reservation cannot decrement the stock,
	// either because the book is missing or because stock < amount.
	ErrSoldOut = errors.New("bookshop: not enough stock")

	// ErrReferenceIntegrity is returned when an update introduces a dangling
	// foreign key.
	ErrReferenceIntegrity = errors.New("bookshop: reference integrity violated")
)

// requestError carries a status and message decided at parse/validation time.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func errMalformedPayload() error {
	return &requestError{status: http.StatusBadRequest, message: "Unexpected end of JSON input"}
}

func errInvalidValue(field string, val any) error {
	msg := fmt.Sprintf("Invalid value for required property %q", field)
	if val != nil {
		msg = fmt.Sprintf("Invalid value %v for property %q", val, field)
	}
	return &requestError{status: http.StatusBadRequest, message: msg}
}

func errMissingKey() error {
	return &requestError{status: http.StatusBadRequest, message: "Expected at least one key for this operation"}
}

func errInvalidKey(raw, set string) error {
	return &requestError{
		status:  http.StatusNotFound,
		message: fmt.Sprintf("'%s' is not a valid key for %s", raw, set),
	}
}

func errMethodNotAllowed(method, set string) error {
	return &requestError{
		status:  http.StatusMethodNotAllowed,
		message: fmt.Sprintf("Method %s not allowed for entity collection %s", method, set),
	}
}

func errAmountTooSmall() error {
	return &requestError{status: http.StatusBadRequest, message: "Order at least 1 book"}
}

func errNoSuchNavigation(name, set string) error {
	return &requestError{
		status:  http.StatusBadRequest,
		message: fmt.Sprintf("%q is not a navigation property of %s", name, set),
	}
}

// classify maps any error the pipeline can produce onto the wire triple.
// It is total: unknown errors become a 500 without leaking internals.
func classify(err error) (status int, code, message string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		status, message = reqErr.status, reqErr.message
	case errors.Is(err, ErrNotFound):
		status, message = http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrAlreadyExists):
		status, message = http.StatusBadRequest, "Entity already exists"
	case errors.Is(err, ErrSoldOut):
		status, message = http.StatusConflict, "Sold out, sorry"
	case errors.Is(err, ErrReferenceIntegrity):
		status, message = http.StatusBadRequest, "Reference integrity is violated"
	default:
		status, message = http.StatusInternalServerError, "Internal Server Error"
	}
	return status, strconv.Itoa(status), message
}
