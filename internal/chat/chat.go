// Package chat holds the narrow contract the orchestrator has on the
// chat-relay API. The transport's internals stay behind it.
package chat

import "context"

// Channel is one conversation a task reports into.
type Channel interface {
	// Reply posts a new message and returns its status handle.
	Reply(ctx context.Context, text string) (StatusMessage, error)
}

// StatusMessage is the single status message a task owns. All progress for
// the task and all of its files is multiplexed onto this one message.
// Implementations must serialize concurrent writers.
type StatusMessage interface {
	// Edit replaces the message text in place. Editing to byte-identical
	// content is a no-op, not an error.
	Edit(ctx context.Context, text string) error

	// UploadFile relays one local file into the conversation.
	UploadFile(ctx context.Context, up Upload) error
}

// Upload describes one file relay through the chat transport.
type Upload struct {
	Path      string
	Caption   string
	ThumbPath string // optional
	// OnProgress is driven from the transport's own upload loop with
	// cumulative written bytes and the total size.
	OnProgress func(written, total int64)
}
