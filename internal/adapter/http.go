package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

const userAgent = "jobdigest/1.0 (+https://github.com/amishk599/jobdigest)"

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// doJSON sends a request and decodes a JSON response into out. Non-200
// responses become *model.HTTPError so the retry decorator can inspect them.
func doJSON(ctx context.Context, client *http.Client, method, url string, body any, out any, label string) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", label, err)
		}
		reader = bytes.NewReader(b)
	}

	resp, err := send(ctx, client, method, url, reader, "application/json", label)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: fmt.Errorf("%s: decode: %w", label, err)}
	}
	return nil
}

// doXML fetches url and decodes an XML response into out.
func doXML(ctx context.Context, client *http.Client, url string, out any, label string) error {
	resp, err := send(ctx, client, http.MethodGet, url, nil, "application/xml", label)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: fmt.Errorf("%s: decode: %w", label, err)}
	}
	return nil
}

// send performs the request. The caller closes the body of a non-nil
// response, which is always a 200.
func send(ctx context.Context, client *http.Client, method, url string, body io.Reader, accept, label string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s: unexpected status %d", label, resp.StatusCode),
		}
	}
	return resp, nil
}

// decodeError marks a response that arrived but could not be understood.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// Is makes a decodeError match model.ErrMalformedResponse.
func (e *decodeError) Is(target error) bool { return target == model.ErrMalformedResponse }

func parseRFC3339(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
