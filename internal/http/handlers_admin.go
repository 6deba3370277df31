package http

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	applog "storico/internal/log"
)

// HeaderAdminToken carries the admin secret.
const HeaderAdminToken = "X-Admin-Token"

type refreshResult struct {
	ClientID    string `json:"client_id"`
	Status      string `json:"status"`
	Sales       *int   `json:"sales,omitempty"`
	Invalidated int    `json:"invalidated"`
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(max(1, int(math.Ceil(d.Seconds()))))
}

// authorizeAdmin checks the admin token, keyed by client IP in the lockout
// guard. It writes the failure response itself and reports whether to go on.
func (s *Server) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentLockout)

	if s.adminToken == "" {
		writeJSONError(w, http.StatusForbidden, "admin_disabled", "Admin endpoints are disabled")
		return false
	}

	ip := s.detector.ExtractClientIP(r)
	if locked, wait := s.lockout.Check(ip); locked {
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		writeJSONError(w, http.StatusTooManyRequests, "locked_out", "Too many failed attempts. Try again later.")
		return false
	}

	given := r.Header.Get(HeaderAdminToken)
	if subtle.ConstantTimeCompare([]byte(given), []byte(s.adminToken)) != 1 {
		left := s.lockout.Fail(ip)
		logger.WarnContext(ctx, "Admin token rejected",
			applog.FieldClientIP, ip,
			"attempts_left", left,
			"error_type", applog.ErrorTypeAuth)
		if left == 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(s.lockout.LockDuration()))
			writeJSONError(w, http.StatusTooManyRequests, "locked_out", "Too many failed attempts. Try again later.")
			return false
		}
		writeJSONError(w, http.StatusUnauthorized, "unauthorized",
			fmt.Sprintf("Invalid admin token (%d attempts left)", left))
		return false
	}

	s.lockout.Reset(ip)
	return true
}

// handleAdminRefresh forces a refresh of one client's history. With a
// publisher the refresh is queued; with a syncer it runs inline. The cache
// entry is dropped in every case.
func (s *Server) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(w, r) {
		return
	}

	ctx := r.Context()
	logger := applog.FromContext(ctx)

	clientID, err := ParseClientID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_client_id", "Invalid client id")
		return
	}

	result := refreshResult{ClientID: clientID, Invalidated: s.history.Invalidate(clientID)}

	switch {
	case s.publisher != nil:
		if err := s.publisher.PublishSaleRecorded(ctx, clientID, ""); err != nil {
			logger.ErrorContext(ctx, "Failed to queue client refresh",
				applog.FieldClientID, clientID,
				applog.FieldError, err,
				applog.FieldOperation, applog.OpRefresh)
			writeJSONError(w, http.StatusBadGateway, "publish_failed", "Could not queue refresh")
			return
		}
		result.Status = "queued"
		logger.InfoContext(ctx, "Client refresh queued", applog.FieldClientID, clientID)
		writeRefreshResult(w, http.StatusAccepted, result,
			NewHTMXResponse().TriggerNotification(NotificationInfo, "Refresh queued", 3000))

	case s.syncer != nil:
		n, err := s.syncer.Sync(ctx, clientID)
		if err != nil {
			status, code, msg := classifyHistoryError(err)
			logger.ErrorContext(ctx, "Client refresh failed",
				applog.FieldClientID, clientID,
				applog.FieldError, err,
				applog.FieldOperation, applog.OpRefresh)
			writeJSONError(w, status, code, msg)
			return
		}
		// Reads that raced the sync may have cached the old snapshot.
		result.Invalidated += s.history.Invalidate(clientID)
		result.Status = "refreshed"
		result.Sales = &n
		logger.InfoContext(ctx, "Client refreshed",
			applog.FieldClientID, clientID,
			applog.FieldSaleCount, n)
		writeRefreshResult(w, http.StatusOK, result,
			NewHTMXResponse().TriggerHistoryRefresh(clientID).TriggerSuccessNotification("History refreshed"))

	default:
		result.Status = "invalidated"
		writeRefreshResult(w, http.StatusOK, result, NewHTMXResponse().TriggerHistoryRefresh(clientID))
	}
}

// writeRefreshResult writes result in the JSON envelope, carrying the triggers
// of b so that an HTMX caller reloads the history partial.
func writeRefreshResult(w http.ResponseWriter, status int, result refreshResult, b *HTMXResponseBuilder) {
	body, err := json.Marshal(envelope{Data: result})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "encode_failed", "Could not encode response")
		return
	}
	b.Status(status).
		Header("Content-Type", "application/json; charset=utf-8").
		Body(append(body, '\n')).
		Write(w)
}
