// internal/notifications/sink.go - Notification transport contract
package notifications

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

const UserAgent = "camwatch/1.0"

// Attachment kinds.
const (
	KindPhoto    = "photo"
	KindDocument = "document"
)

// ErrUnsupported is returned by sinks that cannot carry an attachment kind.
var ErrUnsupported = errors.New("attachment kind not supported by sink")

type Message struct {
	Title string
	Body  string // HTML subset understood by Telegram
}

type Attachment struct {
	Path    string
	Kind    string
	Caption string
}

// Sink delivers alert text and files to one channel.
type Sink interface {
	Name() string
	SendText(ctx context.Context, msg Message) error
	SendAttachment(ctx context.Context, att Attachment) error
}

// KindForPath picks photo for image files and document for everything else.
func KindForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return KindPhoto
	default:
		return KindDocument
	}
}
