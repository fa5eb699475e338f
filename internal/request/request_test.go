package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	for chatType, want := range map[string]Kind{
		"private":    KindPrivate,
		"group":      KindGroup,
		"supergroup": KindSupergroup,
		"channel":    KindChannel,
		"":           KindUnknown,
		"Private":    KindUnknown,
	} {
		got := ParseKind(chatType)
		assert.Equal(t, want, got, chatType)
		if want != KindUnknown {
			assert.Equal(t, chatType, got.String())
		}
	}
}

func TestNewTokenizesText(t *testing.T) {
	t.Parallel()

	req := New(KindGroup, `Echo "hello world" it's`)
	assert.Nil(t, req.Arguments, "unbalanced quotes give no arguments")

	req = New(KindPrivate, `Echo "hello world"`)
	assert.Equal(t, []string{"Echo", "hello world"}, req.Arguments)
	assert.True(t, req.IsPrivate())

	req.Text = ""
	req.Tokenize()
	assert.Empty(t, req.Arguments)
}

func TestHasAttachment(t *testing.T) {
	t.Parallel()

	req := New(KindPrivate, "")
	assert.False(t, req.HasAttachment())

	req.Attachment = &Attachment{Kind: AttachmentNone}
	assert.False(t, req.HasAttachment())

	req.Attachment = &Attachment{Kind: AttachmentVoice, FileID: "f"}
	assert.True(t, req.HasAttachment())
	assert.Equal(t, "voice", req.Attachment.Kind.String())
}
