package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twangboy/relative-environment-for-python/internal/builder"
)

func TestRenderListsStepsSorted(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, func() map[string]builder.State {
		return map[string]builder.State{
			"zlib":    builder.Succeeded,
			"openssl": builder.Running,
			"python":  builder.Waiting,
		}
	})
	p.Render()

	out := buf.String()
	assert.Contains(t, out, "openssl")
	assert.Contains(t, out, "python .")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("openssl")), bytes.Index(buf.Bytes(), []byte("python")))
}
