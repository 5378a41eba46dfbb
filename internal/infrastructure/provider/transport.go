package provider

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// LoggingTransport is an http.RoundTripper that logs outbound provider traffic at debug level.
// Credentials in the query string are redacted.
type LoggingTransport struct {
	Base     http.RoundTripper
	LogLevel string
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if strings.ToLower(t.LogLevel) != "debug" {
		return base.RoundTrip(req)
	}

	log.Printf("DEBUG OUTBOUND REQUEST: [%s] %s", req.Method, redactURL(req.URL))

	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	log.Printf("DEBUG OUTBOUND RESPONSE: %d %s", resp.StatusCode, redactURL(req.URL))

	respBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewBuffer(respBody))

	if len(respBody) > 0 {
		log.Printf("DEBUG OUTBOUND RESPONSE BODY: %s", truncate(string(respBody), 2048))
	}

	return resp, nil
}

func redactURL(u *url.URL) string {
	c := *u
	q := c.Query()
	for _, k := range []string{"key", "api_key", "apikey"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	c.RawQuery = q.Encode()
	return c.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// NewHTTPClient builds the client shared by provider adapters.
func NewHTTPClient(logLevel string) *http.Client {
	return &http.Client{
		Transport: &LoggingTransport{Base: http.DefaultTransport, LogLevel: logLevel},
		Timeout:   defaultHTTPTimeout,
	}
}
