// Package httpx holds the one HTTP client used for model providers and Slack.
package httpx

import (
	"net/http"
	"time"

	"trialdesk/internal/logging"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var externalHTTPClient = &http.Client{
	Timeout:   defaultExternalHTTPTimeout,
	Transport: loggingTransport{next: http.DefaultTransport},
}

// ExternalHTTPClient is shared by every outbound model and Slack call.
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

// ConfigureExternalHTTPClient sets the shared timeout; non-positive means the
// default. Call it before any client is built.
func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

// loggingTransport logs host, path, status and latency of each call. Query
// strings are left out since some providers accept keys there.
type loggingTransport struct {
	next http.RoundTripper
}

func (t loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		logging.L().Debugf("http %s host=%s path=%s elapsed=%s err=%v", req.Method, req.URL.Host, req.URL.Path, elapsed, err)
		return nil, err
	}
	logging.L().Debugf("http %s host=%s path=%s status=%d elapsed=%s", req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, elapsed)
	return resp, nil
}
