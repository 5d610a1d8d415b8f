package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneIsDeep(t *testing.T) {
	orig := sampleHistory()
	c := orig.Clone()
	assert.Equal(t, orig, c)

	c[0].Parts[0].Text = "changed"
	c[1].ToolCalls[0].Args["query"] = "dog"
	c[4].Parts[0].Data[0] = 9
	c = append(c, Message{Role: RoleUser})

	assert.Equal(t, "what is in this picture?", orig[0].Parts[0].Text)
	assert.Equal(t, "cat", orig[1].ToolCalls[0].Args["query"])
	assert.Equal(t, byte(0), orig[4].Parts[0].Data[0])
	assert.Len(t, orig, 5)
}

func TestCloneNil(t *testing.T) {
	var h History
	assert.Nil(t, h.Clone())
}
