// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// responder creates a Response for a recorded Request.
type responder func(req *Request) (*Response, error)

// mockTransport records all Requests and answers them with the queued responders.
type mockTransport struct {
	sync.Mutex

	requests   []*Request
	responders []responder
}

func newMockTransport(responders ...responder) *mockTransport {
	return &mockTransport{responders: responders}
}

func (mt *mockTransport) Do(_ context.Context, req *Request) (*Response, error) {
	mt.Lock()
	defer mt.Unlock()

	mt.requests = append(mt.requests, req)
	if len(mt.responders) == 0 {
		return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.URL)
	}

	next := mt.responders[0]
	mt.responders = mt.responders[1:]
	return next(req)
}

func (mt *mockTransport) queue(responders ...responder) {
	mt.Lock()
	defer mt.Unlock()

	mt.responders = append(mt.responders, responders...)
}

func (mt *mockTransport) recorded() []*Request {
	mt.Lock()
	defer mt.Unlock()

	return append([]*Request(nil), mt.requests...)
}

// respond with a status code, headers as key-value pairs and an optional body.
func respond(status int, body string, headers ...string) responder {
	return func(req *Request) (*Response, error) {
		header := make(http.Header)
		for i := 0; i+1 < len(headers); i += 2 {
			header.Set(headers[i], headers[i+1])
		}

		var data []byte
		if body != "" {
			data = []byte(body)
		}

		return &Response{
			StatusCode: status,
			Header:     header,
			URL:        req.URL,
			Body:       data,
		}, nil
	}
}

func fail(err error) responder {
	return func(_ *Request) (*Response, error) {
		return nil, err
	}
}

// listenerRecorder collects all reasons passed to a FailureListener.
type listenerRecorder struct {
	sync.Mutex
	reasons []Reason
}

func (lr *listenerRecorder) listen(reason Reason) {
	lr.Lock()
	defer lr.Unlock()

	lr.reasons = append(lr.reasons, reason)
}

func (lr *listenerRecorder) recorded() []Reason {
	lr.Lock()
	defer lr.Unlock()

	return append([]Reason(nil), lr.reasons...)
}
