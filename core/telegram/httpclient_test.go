package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyTransport struct {
	failures int
	calls    int
	bodies   []string
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.bodies = append(f.bodies, string(b))
	}
	if f.calls <= f.failures {
		return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}")), Request: req}, nil
}

func TestBuildHTTPClientRetriesReplayableRequests(t *testing.T) {
	ft := &flakyTransport{failures: 2}
	client := BuildHTTPClient(HTTPClientOptions{Retries: 2, RetryBackoff: time.Millisecond, Transport: ft})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "http://bot.test/bot1:x/sendMessage", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, 3, ft.calls)
	assert.Equal(t, []string{`{"text":"hi"}`, `{"text":"hi"}`, `{"text":"hi"}`}, ft.bodies)
}

func TestBuildHTTPClientGivesUp(t *testing.T) {
	ft := &flakyTransport{failures: 10}
	client := BuildHTTPClient(HTTPClientOptions{Retries: 1, RetryBackoff: time.Millisecond, Transport: ft})

	_, err := client.Get("http://bot.test/bot1:x/getMe")
	require.Error(t, err)
	assert.Equal(t, 2, ft.calls)

	ft = &flakyTransport{failures: 10}
	client = BuildHTTPClient(HTTPClientOptions{Retries: -1, Transport: ft})
	_, err = client.Get("http://bot.test/bot1:x/getMe")
	require.Error(t, err)
	assert.Equal(t, 1, ft.calls)
}
