package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the management server. Message is the
// server-supplied text, surfaced verbatim to the enrollment status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e APIError) Error() string {
	return e.Message
}

func newAPIError(response *http.Response) error {
	apiErr := APIError{StatusCode: response.StatusCode}

	data, err := io.ReadAll(response.Body)
	if err == nil {
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
			apiErr.Message = payload.Message
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("server returned status %d", response.StatusCode)
	}

	return apiErr
}

func decodeBody(response *http.Response, out any) error {
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("cannot read response body '%w'", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cannot unmarshal response body '%w'", err)
	}

	return nil
}
