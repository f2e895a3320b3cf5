package client

import (
	"bytes"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type logTransportWrapper struct {
	next http.RoundTripper
}

func (l *logTransportWrapper) Wrap(transport http.RoundTripper) http.RoundTripper {
	return &logTransportWrapper{
		next: transport,
	}
}

func (l *logTransportWrapper) RoundTrip(request *http.Request) (response *http.Response, err error) {
	id := uuid.NewString()

	// Read the complete body in memory, in order to send it to the log, and
	// replace it with a reader that reads it from memory:
	if request.Body != nil {
		var body []byte
		body, err = io.ReadAll(request.Body)
		if err != nil {
			return
		}

		err = request.Body.Close()
		if err != nil {
			return
		}

		l.logRequest(id, request, body)
		request.Body = io.NopCloser(bytes.NewBuffer(body))
	} else {
		l.logRequest(id, request, nil)
	}

	response, err = l.next.RoundTrip(request)
	if err != nil {
		return
	}

	if response.Body != nil {
		var body []byte
		body, err = io.ReadAll(response.Body)
		if err != nil {
			return
		}

		err = response.Body.Close()
		if err != nil {
			return
		}

		l.logResponse(id, response, body)
		response.Body = io.NopCloser(bytes.NewBuffer(body))
	} else {
		l.logResponse(id, response, nil)
	}

	return
}

func (l *logTransportWrapper) logRequest(id string, request *http.Request, body []byte) {
	zap.S().Debugw("request", "id", id, "method", request.Method, "url", request.URL.String())

	if body != nil {
		zap.S().Debugw("request body", "id", id, "body", string(body))
	}
}

func (l *logTransportWrapper) logResponse(id string, response *http.Response, body []byte) {
	zap.S().Debugw("response", "id", id, "status", response.Status)

	if body != nil {
		zap.S().Debugw("response body", "id", id, "body", string(body))
	}
}
