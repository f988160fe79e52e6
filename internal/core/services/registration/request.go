package registration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// newReqID mirrors the per-stage fresh req_id requirement: every stage
// generates its own, never reusing one from a prior stage.
func newReqID() string {
	return uuid.NewString()
}

func doRequest(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &transientTransportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientTransportError{err: err}
	}
	return respBody, nil
}

// transientTransportError marks a network-level failure (timeout,
// connection reset) distinctly from a protocol-level one, so the caller
// can wrap it as domain.TransientError.
type transientTransportError struct{ err error }

func (e *transientTransportError) Error() string { return e.err.Error() }
func (e *transientTransportError) Unwrap() error { return e.err }
