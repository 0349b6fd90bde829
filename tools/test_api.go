package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultAPIBaseURL = "http://localhost:3000"

// TestAPIArgs is the input of test-api.
type TestAPIArgs struct {
	Endpoint string `json:"endpoint" jsonschema:"description=API endpoint to test"`
	Method   string `json:"method,omitempty" jsonschema:"description=HTTP method to use,default=GET"`
	Data     any    `json:"data,omitempty" jsonschema:"description=Request body sent as JSON"`
}

func (a *TestAPIArgs) Validate() error {
	if strings.TrimSpace(a.Endpoint) == "" {
		return &ValidationError{Field: "endpoint", Reason: "must not be empty"}
	}
	if strings.ContainsAny(a.Method, " \t\r\n") {
		return &ValidationError{Field: "method", Reason: "must be a single HTTP method token"}
	}
	return nil
}

// TestAPIResult reports the upstream status and decoded body.
type TestAPIResult struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

// NewTestAPI returns the test-api tool. Requests go to {baseURL}/api/{endpoint}
// with JSON content negotiation. Transport failures are reported as status
// 500 with an error payload rather than as tool errors.
func NewTestAPI(baseURL string, client *http.Client) Definition {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if client == nil {
		client = http.DefaultClient
	}

	return New("test-api", "Test API endpoints and return the results", func(ctx context.Context, in TestAPIArgs) (TestAPIResult, error) {
		method := strings.ToUpper(in.Method)
		if method == "" {
			method = http.MethodGet
		}
		url := baseURL + "/api/" + strings.TrimPrefix(in.Endpoint, "/")

		var body io.Reader
		if in.Data != nil && method != http.MethodGet && method != http.MethodHead {
			b, err := json.Marshal(in.Data)
			if err != nil {
				return failedCall(fmt.Errorf("encode request body: %w", err)), nil
			}
			body = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return failedCall(err), nil
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return failedCall(err), nil
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return failedCall(fmt.Errorf("read response: %w", err)), nil
		}
		return TestAPIResult{Status: resp.StatusCode, Data: decodeBody(raw)}, nil
	})
}

func failedCall(err error) TestAPIResult {
	return TestAPIResult{Status: http.StatusInternalServerError, Data: map[string]any{"error": err.Error()}}
}

// decodeBody returns the JSON value of raw, or raw as text when it is not JSON.
func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return string(raw)
	}
	return v
}
