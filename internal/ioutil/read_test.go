package ioutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadLimited(t *testing.T) {
	assert.Equal(t, `{"error":"No session"}`, ReadLimited(strings.NewReader("{\"error\":\"No session\"}\n"), 1024))
	assert.Equal(t, "Bad", ReadLimited(strings.NewReader("Bad Gateway"), 3))
	assert.Equal(t, "", ReadLimited(strings.NewReader(""), 1024))
	assert.Equal(t, "<unreadable: connection reset>", ReadLimited(brokenReader{}, 1024))
}
