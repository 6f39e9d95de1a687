package resend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resend-dispatch/campaign/internal/domain"
)

type fakeHTTPClient struct {
	resp *http.Response
	err  error
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return f.resp, f.err
}

func jsonResponse(status int, body string, headers http.Header) *http.Response {
	if headers == nil {
		headers = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     headers,
	}
}

func TestSendAccepted(t *testing.T) {
	c := New("key", WithHTTPClient(&fakeHTTPClient{
		resp: jsonResponse(200, `{"id":"msg_42"}`, nil),
	}))

	result, err := c.Send(context.Background(), domain.SendRequest{FromAddr: "a@x.io", ToAddr: "b@x.io", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.SendAccepted, result.Kind)
	assert.Equal(t, "msg_42", result.ProviderMessageID)
	assert.Equal(t, 200, result.HTTPStatus)
}

func TestSendRateLimited(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "5")
	c := New("key", WithHTTPClient(&fakeHTTPClient{
		resp: jsonResponse(429, `{"message":"too many requests"}`, headers),
	}))

	result, err := c.Send(context.Background(), domain.SendRequest{FromAddr: "a@x.io", ToAddr: "b@x.io"})
	require.NoError(t, err)
	assert.Equal(t, domain.SendTransientFailure, result.Kind)
	assert.Equal(t, 5, result.RetryAfterSeconds)
}

func TestSendServerError(t *testing.T) {
	c := New("key", WithHTTPClient(&fakeHTTPClient{
		resp: jsonResponse(503, `{"message":"down"}`, nil),
	}))

	result, err := c.Send(context.Background(), domain.SendRequest{FromAddr: "a@x.io", ToAddr: "b@x.io"})
	require.NoError(t, err)
	assert.Equal(t, domain.SendTransientFailure, result.Kind)
	assert.Equal(t, 503, result.HTTPStatus)
}

func TestSendPermanentFailure(t *testing.T) {
	c := New("key", WithHTTPClient(&fakeHTTPClient{
		resp: jsonResponse(400, `{"message":"invalid from address"}`, nil),
	}))

	result, err := c.Send(context.Background(), domain.SendRequest{FromAddr: "bad", ToAddr: "b@x.io"})
	require.NoError(t, err)
	assert.Equal(t, domain.SendPermanentFailure, result.Kind)
	assert.Equal(t, 400, result.HTTPStatus)
	assert.Contains(t, result.Detail, "invalid from address")
}

func TestSendConnectionError(t *testing.T) {
	c := New("key", WithHTTPClient(&fakeHTTPClient{
		err: errors.New("connection reset"),
	}))

	result, err := c.Send(context.Background(), domain.SendRequest{FromAddr: "a@x.io", ToAddr: "b@x.io"})
	require.NoError(t, err)
	assert.Equal(t, domain.SendTransientFailure, result.Kind)
	assert.Contains(t, result.Detail, "connection reset")
}
