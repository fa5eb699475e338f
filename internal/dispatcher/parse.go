package dispatcher

import (
	"errors"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/edgard/pollbot/internal/request"
	"github.com/edgard/pollbot/internal/selector"
)

var (
	errNoChatID = errors.New("message has no chat id")
	errNoDate   = errors.New("message has no date")
)

// parseMessage builds a request from a message or channel_post object.
// Arguments are left empty; the request task tokenizes the text.
func parseMessage(msg any, botUsername string) (*request.Request, error) {
	chatID, ok := selector.Int(msg, ".chat.id:n")
	if !ok {
		return nil, errNoChatID
	}
	date, ok := selector.Int(msg, ".date:n")
	if !ok {
		return nil, errNoDate
	}

	req := &request.Request{ChatID: chatID, Timestamp: time.Unix(date, 0)}

	chatType, _ := selector.String(msg, ".chat.type:s")
	req.Kind = request.ParseKind(chatType)
	req.SenderID, _ = selector.Int(msg, ".from.id:n")
	req.SenderName = "unknown"
	if name, ok := selector.String(msg, ".from.username:s"); ok {
		req.SenderName = name
	}
	req.MessageID, _ = selector.Int(msg, ".message_id:n")
	req.Text, _ = selector.String(msg, ".text:s")
	req.Attachment = parseAttachment(msg)

	if req.Text != "" {
		req.Mentions, req.MentionsBot = parseMentions(msg, req.Text, botUsername)
	}
	return req, nil
}

// parseAttachment returns the first of voice, audio, document or the
// largest photo size found on msg.
func parseAttachment(msg any) *request.Attachment {
	for _, candidate := range []struct {
		path string
		kind request.AttachmentKind
	}{
		{".voice:o", request.AttachmentVoice},
		{".audio:o", request.AttachmentAudio},
		{".document:o", request.AttachmentDocument},
	} {
		if node, ok := selector.Select(msg, candidate.path); ok {
			if a := fileAttachment(node, candidate.kind); a != nil {
				return a
			}
		}
	}

	sizes, ok := selector.Array(msg, ".photo:a")
	if !ok || len(sizes) == 0 {
		return nil
	}
	var best *request.Attachment
	for _, size := range sizes {
		a := fileAttachment(size, request.AttachmentPhoto)
		if a != nil && (best == nil || a.Size >= best.Size) {
			best = a
		}
	}
	return best
}

func fileAttachment(node any, kind request.AttachmentKind) *request.Attachment {
	fileID, ok := selector.String(node, ".file_id:s")
	if !ok || fileID == "" {
		return nil
	}
	size, _ := selector.Int(node, ".file_size:n")
	return &request.Attachment{Kind: kind, FileID: fileID, Size: size}
}

// parseMentions extracts the text of every "mention" entity. Entity
// offsets and lengths count UTF-16 code units; entities outside the text
// are ignored.
func parseMentions(msg any, text, botUsername string) ([]string, bool) {
	entities, ok := selector.Array(msg, ".entities:a")
	if !ok {
		return nil, false
	}

	units := utf16.Encode([]rune(text))
	var (
		mentions    []string
		mentionsBot bool
	)
	for _, e := range entities {
		if kind, _ := selector.String(e, ".type:s"); kind != "mention" {
			continue
		}
		offset, ok1 := selector.Int(e, ".offset:n")
		length, ok2 := selector.Int(e, ".length:n")
		if !ok1 || !ok2 || offset < 0 || length <= 0 || offset+length > int64(len(units)) {
			continue
		}

		mention := string(utf16.Decode(units[offset : offset+length]))
		mentions = append(mentions, mention)
		if botUsername != "" && strings.EqualFold(strings.TrimPrefix(mention, "@"), botUsername) {
			mentionsBot = true
		}
	}
	return mentions, mentionsBot
}
