// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data
// shared by the API and UI history routes.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"storico/internal/services"
)

// maxClientIDLength bounds the path parameter.
const maxClientIDLength = 128

var errInvalidClientID = errors.New("invalid client id")

// HistoryParams holds the parsed options of a history request.
type HistoryParams struct {
	ClientID string
	Months   int
	Lang     string
}

// Options converts the params to service options.
func (p HistoryParams) Options() services.HistoryOptions {
	return services.HistoryOptions{Months: p.Months, Lang: p.Lang}
}

// ParseClientID extracts and validates the {id} path value.
func ParseClientID(r *http.Request) (string, error) {
	id := sanitizeInput(r.PathValue("id"))
	if id == "" || len(id) > maxClientIDLength || !utf8.ValidString(id) {
		return "", errInvalidClientID
	}
	return id, nil
}

// ParseHistoryParams extracts the client id, the months query parameter and the
// label language. Missing months means the service default; lang falls back to
// the Accept-Language header.
func ParseHistoryParams(r *http.Request) (HistoryParams, error) {
	id, err := ParseClientID(r)
	if err != nil {
		return HistoryParams{}, err
	}
	params := HistoryParams{ClientID: id}

	query := r.URL.Query()
	if v := strings.TrimSpace(query.Get("months")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 {
			return params, fmt.Errorf("%w: %q", services.ErrInvalidMonths, v)
		}
		params.Months = m
	}

	params.Lang = sanitizeInput(query.Get("lang"))
	if params.Lang == "" {
		params.Lang = strings.TrimSpace(r.Header.Get("Accept-Language"))
	}
	return params, nil
}
