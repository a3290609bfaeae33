package handlertools

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
)

var log = internal.GetLogger()

var Validate = validator.New()

// IntFromQuery extracts a query string value and converts it to an int
// if it is not empty. If the value is empty, it returns 0.
func IntFromQuery[T ~int | int32 | int64](
	r *http.Request,
	param string,
) (T, error) {
	bitsize := 0

	p := r.URL.Query().Get(param)
	var pInt T
	if p != "" {
		switch any(pInt).(type) {
		case int:
		case int32:
			bitsize = 32
		case int64:
			bitsize = 64
		default:
			return 0, errors.New("unsupported type")
		}

		pInt, err := strconv.ParseInt(p, 10, bitsize)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid %s: %w", models.ErrBadRequest, param, err)
		}
		return T(pInt), nil
	}
	return 0, nil
}

// BoolFromQuery extracts a query string value and converts it to a bool
func BoolFromQuery(r *http.Request, param string) (bool, error) {
	p := r.URL.Query().Get(param)
	if p != "" {
		b, err := strconv.ParseBool(p)
		if err != nil {
			return false, fmt.Errorf("%w: invalid %s: %w", models.ErrBadRequest, param, err)
		}
		return b, nil
	}
	return false, nil
}

// IDFromURL parses a positive integer ID from a path parameter.
func IDFromURL(r *http.Request, paramName string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, paramName), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: unable to parse %s", models.ErrBadRequest, paramName)
	}
	return id, nil
}

// EncodeJSON encodes data into JSON and writes it to the response writer.
func EncodeJSON(w http.ResponseWriter, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes a JSON request body into the provided data struct.
func DecodeJSON(r *http.Request, data interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return fmt.Errorf("%w: %w", models.ErrBadRequest, err)
	}
	return nil
}

// DecodeAndValidateJSON decodes the request body into v and validates its
// struct tags. Validation failures are bad requests.
func DecodeAndValidateJSON(r *http.Request, v any) error {
	if err := DecodeJSON(r, v); err != nil {
		return err
	}
	if err := Validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", models.ErrBadRequest, err)
	}
	return nil
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBadRequest),
		errors.Is(err, models.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrLockAcquisitionFailed):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrUpstreamUnavailable),
		errors.Is(err, models.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RenderError renders an error response with the status StatusFor assigns to err.
func RenderError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	switch {
	case status == http.StatusRequestEntityTooLarge:
		err = errors.New("request body too large")
	case status >= http.StatusInternalServerError:
		log.Error(err)
	default:
		// client errors are expected traffic
		log.Debug(err)
	}

	http.Error(w, err.Error(), status)
}
