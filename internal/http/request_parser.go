// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"spendsense/internal/core"
	"spendsense/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

var (
	errMalformedBody = errors.New("malformed request body")
	errInvalidMonth  = fmt.Errorf("%w: month must be formatted as YYYY-MM", core.ErrValidation)
	errInvalidFlag   = fmt.Errorf("%w: boolean query parameter expected", core.ErrValidation)
)

// validationError carries per-field messages from the validator.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.fields[k]
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

func (e *validationError) Unwrap() error { return core.ErrValidation }

// decodeJSON reads a single JSON document into dst and validates its tags.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := decodeBody(w, r, dst); err != nil {
		return err
	}
	return s.validateStruct(dst)
}

// decodeBody reads a single JSON document into dst. Unknown fields are ignored.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON document", errMalformedBody)
	}
	return nil
}

func (s *Server) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = formatFieldError(fe)
	}
	return &validationError{fields: fields}
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// jsonFieldName makes validator report fields by their JSON names.
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// parseMonth reads ?month=YYYY-MM. Absent means the current month, reported
// as the zero time. The day is pinned mid-month so that shifting the result
// into any time zone keeps it in the same month.
func parseMonth(q url.Values) (time.Time, error) {
	v := strings.TrimSpace(q.Get("month"))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01", v)
	if err != nil {
		return time.Time{}, errInvalidMonth
	}
	return time.Date(t.Year(), t.Month(), 15, 12, 0, 0, 0, time.UTC), nil
}

// parseMonthFilter reads ?month=YYYY-MM&all=true for the personal list.
func parseMonthFilter(q url.Values) (services.MonthFilter, error) {
	month, err := parseMonth(q)
	if err != nil {
		return services.MonthFilter{}, err
	}
	f := services.MonthFilter{Month: month}
	if v := strings.TrimSpace(q.Get("all")); v != "" {
		all, err := strconv.ParseBool(v)
		if err != nil {
			return services.MonthFilter{}, errInvalidFlag
		}
		f.All = all
	}
	return f, nil
}
