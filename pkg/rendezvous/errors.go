// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration is returned if a Channel cannot operate with its configuration, e.g., if there is no way to
	// create a channel or the relay's creation response lacks the channel's location.
	ErrConfiguration = errors.New("rendezvous configuration error")

	// ErrNotReady is returned by Receive if no channel URL is known yet. It wraps ErrConfiguration.
	ErrNotReady = fmt.Errorf("%w: rendezvous channel not set up", ErrConfiguration)

	// ErrPreconditionFailed matches a StatusError for a rejected conditional write, i.e., the channel was changed by
	// the other party since the last observed version.
	ErrPreconditionFailed = errors.New("rendezvous precondition failed")

	// ErrBodyTooLarge is returned by the HTTPTransport for a response exceeding its MaxBodySize.
	ErrBodyTooLarge = errors.New("rendezvous response body too large")
)

// StatusError is returned for unexpected HTTP status codes from the relay.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func newStatusError(req *Request, resp *Response) *StatusError {
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return &StatusError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Status:     status,
	}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rendezvous %s %s: %s", e.Method, e.URL, e.Status)
}

// Is reports a 412 StatusError as ErrPreconditionFailed.
func (e *StatusError) Is(target error) bool {
	return target == ErrPreconditionFailed && e.StatusCode == http.StatusPreconditionFailed
}
