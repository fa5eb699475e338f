// Package request defines the normalized representation of an accepted
// chat update handed to request handlers.
package request

import "time"

// Kind is the type of chat a request originated from.
type Kind int

// Chat kinds as reported by the update source.
const (
	KindUnknown Kind = iota
	KindPrivate
	KindGroup
	KindSupergroup
	KindChannel
)

// ParseKind maps a Telegram chat type to a Kind.
func ParseKind(chatType string) Kind {
	switch chatType {
	case "private":
		return KindPrivate
	case "group":
		return KindGroup
	case "supergroup":
		return KindSupergroup
	case "channel":
		return KindChannel
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindGroup:
		return "group"
	case KindSupergroup:
		return "supergroup"
	case KindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// AttachmentKind identifies the type of file carried by a request.
type AttachmentKind int

const (
	AttachmentNone AttachmentKind = iota
	AttachmentVoice
	AttachmentAudio
	AttachmentDocument
	AttachmentPhoto
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentVoice:
		return "voice"
	case AttachmentAudio:
		return "audio"
	case AttachmentDocument:
		return "document"
	case AttachmentPhoto:
		return "photo"
	default:
		return "none"
	}
}

// Attachment references a file stored by the messaging service.
type Attachment struct {
	Kind   AttachmentKind
	FileID string
	Size   int64
}

// Request is a dispatch-ready message. It is owned by the task processing
// it and must not be shared with other requests.
type Request struct {
	Kind       Kind
	Text       string
	SenderID   int64
	SenderName string
	ChatID     int64
	MessageID  int64
	Timestamp  time.Time

	// Arguments is Text split with SplitArgs.
	Arguments []string

	// Mentions holds the "@name" substrings of Text marked as mentions.
	Mentions    []string
	MentionsBot bool

	Attachment *Attachment
}

// New builds a request for text and derives its arguments.
func New(kind Kind, text string) *Request {
	r := &Request{Kind: kind, Text: text}
	r.Tokenize()
	return r
}

// Tokenize (re)derives Arguments from Text. Text that cannot be split
// (unbalanced quotes) yields no arguments.
func (r *Request) Tokenize() {
	args, err := SplitArgs(r.Text)
	if err != nil {
		r.Arguments = nil
		return
	}
	r.Arguments = args
}

// IsPrivate reports whether the request comes from a one-to-one chat.
func (r *Request) IsPrivate() bool {
	return r.Kind == KindPrivate
}

// HasAttachment reports whether a file is attached to the request.
func (r *Request) HasAttachment() bool {
	return r.Attachment != nil && r.Attachment.Kind != AttachmentNone
}
