package stream

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

// headRejectingTransport plays a host that rejects HEAD and serves audio on
// the GET retry.
type headRejectingTransport struct {
	headBody *trackedBody
}

func (t *headRejectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodHead {
		return &http.Response{
			StatusCode: http.StatusMethodNotAllowed,
			Header:     http.Header{},
			Body:       t.headBody,
			Request:    req,
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"audio/mpeg"}},
		Body:       io.NopCloser(strings.NewReader("x")),
		Request:    req,
	}, nil
}

func TestValidateStreamableClosesRejectedHeadBody(t *testing.T) {
	head := &trackedBody{Reader: strings.NewReader("")}
	s := NewFFMPEGLink()
	s.http.Transport = &headRejectingTransport{headBody: head}

	err := s.validateStreamable("https://example.com/stream")
	require.NoError(t, err)
	assert.True(t, head.closed, "rejected HEAD response body must be closed")
}
