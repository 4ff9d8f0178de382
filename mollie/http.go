package mollie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/deepakselfhelp/deepak-payments/payments"
	"go.vocdoni.io/dvote/log"
)

// apiError is the problem+json body of a Mollie error response.
type apiError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Field  string `json:"field"`
}

// do sends a request to the Mollie API. The JSON encoding of in, if any, is
// the request body. The raw response body is returned and, when out is not
// nil, decoded into it.
func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &payments.ProviderError{
			Provider: ProviderName,
			Code:     "request_failed",
			Message:  fmt.Sprintf("%s %s", method, path),
			Err:      err,
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("error closing mollie response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newProviderError(resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return body, nil
}

func newProviderError(status int, body []byte) *payments.ProviderError {
	perr := &payments.ProviderError{
		Provider:   ProviderName,
		StatusCode: status,
		Code:       http.StatusText(status),
		Message:    string(body),
	}
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Detail != "" {
		perr.Code = apiErr.Title
		perr.Message = apiErr.Detail
		if apiErr.Field != "" {
			perr.Message = fmt.Sprintf("%s (field %s)", apiErr.Detail, apiErr.Field)
		}
	}
	return perr
}
