package sse

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWritesFrame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, SendStatus(w, "7", map[string]string{"status": "queued"}))
	assert.Equal(t, "id: 7\nevent: status\ndata: {\"status\":\"queued\"}\n\n", buf.String())
}

func TestSendStringAndErrors(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, Send(w, Event{Data: "hello", Retry: 3000}))
	require.NoError(t, SendError(w, errors.New("boom")))
	require.NoError(t, SendKeepAlive(w))

	assert.Equal(t,
		"retry: 3000\ndata: hello\n\n"+
			"event: error\ndata: {\"message\":\"boom\",\"type\":\"error\"}\n\n"+
			": ping\n\n",
		buf.String())
}
