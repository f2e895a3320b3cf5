package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const sessionTokenHeader = "Session-Token"

type RequestBuilder struct {
	method  string
	url     string
	body    interface{}
	header  map[string]string
	session *SessionContext
}

func newRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		header: make(map[string]string),
	}
}

func (rb *RequestBuilder) Method(method string) *RequestBuilder {
	rb.method = method
	return rb
}

func (rb *RequestBuilder) Url(url string) *RequestBuilder {
	rb.url = url
	return rb
}

func (rb *RequestBuilder) Body(b interface{}) *RequestBuilder {
	rb.body = b
	return rb
}

func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.header[key] = value
	return rb
}

// Session attaches the session token to the request.
func (rb *RequestBuilder) Session(session SessionContext) *RequestBuilder {
	rb.session = &session
	return rb
}

func (rb *RequestBuilder) Accept(mediaType string) *RequestBuilder {
	rb.header["Accept"] = mediaType
	return rb
}

func (rb *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if rb.url == "" {
		return nil, errors.New("request url is required")
	}

	var body io.Reader
	if rb.body != nil {
		payload, err := json.Marshal(rb.body)
		if err != nil {
			return nil, fmt.Errorf("cannot marshal request body '%+v' '%w'", rb.body, err)
		}

		body = bytes.NewBuffer(payload)
	}

	request, err := http.NewRequestWithContext(ctx, rb.method, rb.url, body)
	if err != nil {
		return nil, fmt.Errorf("cannot create request '%w'", err)
	}

	if rb.body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	if rb.session != nil {
		request.Header.Set(sessionTokenHeader, rb.session.Token)
	}

	for k, v := range rb.header {
		request.Header.Set(k, v)
	}

	return request, nil
}
