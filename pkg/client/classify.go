package client

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Outcome is the classification of an HTTP response.
type Outcome int

const (
	// OutcomeSuccess is a 200 response whose body can be consumed.
	OutcomeSuccess Outcome = iota

	// OutcomeEmpty is a 404 on a subresource fetch: the parent simply has no
	// items there, so the caller gets an empty result instead of an error.
	OutcomeEmpty

	// OutcomeStop is a 422 "Too recent start_time." response: the export
	// window is already closed, pagination stops gracefully with no records.
	OutcomeStop

	// OutcomeConfig is a non-retryable configuration failure.
	OutcomeConfig

	// OutcomeTransient is a retryable server-side failure.
	OutcomeTransient

	// OutcomeRateLimited means the API asked us to back off; the wait comes
	// from the Retry-After header.
	OutcomeRateLimited

	// OutcomeFatal is a status code outside the known contract.
	OutcomeFatal
)

// tooRecentStartTime is the 422 body prefix signalling an already-closed
// export window.
const tooRecentStartTime = "Too recent start_time."

var loginURLPattern = regexp.MustCompile(`^https?://[a-z0-9_\-]+(\.zendesk\.com/?)$`)

// classify maps an HTTP response to an Outcome plus the error to surface for
// error outcomes. subresource marks nested-collection fetches, where a 404 is
// an empty result rather than a failure.
func classify(status int, header http.Header, body []byte, loginURL string, subresource bool) (Outcome, error) {
	switch {
	case status == http.StatusOK:
		return OutcomeSuccess, nil

	case status == http.StatusNotFound:
		if subresource {
			return OutcomeEmpty, nil
		}
		if title := gjson.GetBytes(body, "error.title"); strings.HasPrefix(title.String(), "No help desk at ") {
			return OutcomeConfig, &ConfigError{Message: "this address is not registered in Zendesk, check the login_url again"}
		}
		if !loginURLPattern.MatchString(loginURL) {
			return OutcomeConfig, &ConfigError{Message: "invalid login url, use the account base URL (https://example.zendesk.com/)"}
		}
		return OutcomeConfig, &ConfigError{Message: fmt.Sprintf("status '%d', message '%s'", status, body)}

	case status == http.StatusConflict:
		return OutcomeTransient, &APIError{StatusCode: status, Body: string(body)}

	case status == http.StatusUnprocessableEntity:
		if strings.HasPrefix(gjson.GetBytes(body, "description").String(), tooRecentStartTime) ||
			strings.HasPrefix(string(body), tooRecentStartTime) {
			// No records since start_time. Same as an empty 200.
			return OutcomeStop, ErrTooRecentStartTime
		}
		return OutcomeConfig, &ConfigError{Message: fmt.Sprintf("status '%d', message '%s'", status, body)}

	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited, &APIError{StatusCode: status, Body: string(body), RetryAfter: retryAfterSeconds(header)}

	case status == http.StatusUnauthorized:
		return OutcomeConfig, &ConfigError{Message: "invalid credentials, check that you are using your Zendesk credentials"}

	case status == http.StatusForbidden:
		return OutcomeConfig, &ConfigError{Message: "you do not have access to this resource, contact the account owner of this help desk"}

	case status >= 400 && status < 500:
		return OutcomeConfig, &ConfigError{Message: fmt.Sprintf("status '%d', message '%s'", status, body)}

	case status == http.StatusInternalServerError:
		return OutcomeTransient, &APIError{StatusCode: status, Body: string(body)}

	case status == http.StatusServiceUnavailable:
		// 503 with Retry-After is the API throttling us, without it a plain
		// temporary failure.
		if after := retryAfterSeconds(header); after > 0 {
			return OutcomeRateLimited, &APIError{StatusCode: status, Body: string(body), RetryAfter: after}
		}
		return OutcomeTransient, &APIError{StatusCode: status, Body: string(body)}

	default:
		return OutcomeFatal, &APIError{StatusCode: status, Body: string(body)}
	}
}

// retryAfterSeconds reads the Retry-After header, 0 when absent or unparsable.
func retryAfterSeconds(header http.Header) int {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
