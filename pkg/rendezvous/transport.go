// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// DefaultMaxBodySize limits the amount of bytes an HTTPTransport accepts in a response. Larger responses fail.
const DefaultMaxBodySize = 1 << 20

// Request to be performed by a Transport.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// Response of a Transport. The Body is already read completely.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header

	// URL is the effective URL of the response, i.e., after following redirects. Relative references within the
	// response are resolved against it.
	URL *url.URL

	Body []byte
}

// mediaType returns the media type of the Content-Type header without its parameters.
func (resp *Response) mediaType() string {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return ""
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return contentType
}

// Transport performs HTTP requests against the relay. It might be replaced for testing.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f(ctx, req).
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport is the default Transport, based on a http.Client.
type HTTPTransport struct {
	Client      *http.Client
	MaxBodySize int64
}

// NewHTTPTransport for the given http.Client. A nil client results in http.DefaultClient.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPTransport{
		Client:      client,
		MaxBodySize: DefaultMaxBodySize,
	}
}

// Do the HTTP request. Redirects are followed as configured by the http.Client.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	httpResp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	maxBodySize := t.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize+1))
	if err != nil {
		return nil, err
	} else if int64(len(data)) > maxBodySize {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrBodyTooLarge, maxBodySize)
	}

	effectiveUrl := req.URL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		effectiveUrl = httpResp.Request.URL
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		URL:        effectiveUrl,
		Body:       data,
	}, nil
}
