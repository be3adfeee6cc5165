// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies into field maps, listing filters and month parameters.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// maxListLimit caps the number of records a single listing may return.
const maxListLimit = 1000

// ErrBadBody is returned when a request body is not a JSON object.
var ErrBadBody = errors.New("request body must be a JSON object")

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using now
// for the ones that are absent. Present but malformed values are a
// validation error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	verr := &core.ValidationError{}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			params.Year = y
		} else {
			verr.Add("year", "must be a number")
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			params.Month = m
		} else {
			verr.Add("month", "must be a number")
		}
	}

	return params, verr.OrNil()
}

// ParseFilter builds a listing filter from query parameters. A date-only "to"
// bound covers the whole day.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter
	verr := &core.ValidationError{}

	if v := strings.TrimSpace(query.Get("from")); v != "" {
		if t, err := core.ParseDate(v); err == nil {
			f.From = t
		} else {
			verr.Add("from", err.Error())
		}
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		if t, err := core.ParseDate(v); err == nil {
			if isDateOnly(v) {
				t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
			}
			f.To = t
		} else {
			verr.Add("to", err.Error())
		}
	}

	f.Category = sanitizeInput(query.Get("category"))
	f.Type = core.TransactionType(strings.ToLower(strings.TrimSpace(query.Get("type"))))
	f.Order = core.Order(strings.ToLower(strings.TrimSpace(query.Get("order"))))

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			verr.Add("limit", "must be a number")
		case n < 0 || n > maxListLimit:
			verr.Add("limit", fmt.Sprintf("must be between 0 and %d", maxListLimit))
		default:
			f.Limit = n
		}
	}

	return f, verr.OrNil()
}

func isDateOnly(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// DecodeFields reads a JSON object body into a field map. Numbers are kept
// as json.Number so money keeps its exact decimal form.
func DecodeFields(r *http.Request) (core.Fields, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrBadBody, maxBodyBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields core.Fields
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	if fields == nil {
		return nil, ErrBadBody
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrBadBody)
	}

	for k, v := range fields {
		if s, ok := v.(string); ok {
			fields[k] = sanitizeInput(s)
		}
	}
	return fields, nil
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
