// Package transport defines the chat-platform boundary. The core talks
// to this interface; the telegram subpackage implements it.
package transport

import "context"

// ChatTarget addresses a chat and, optionally, a forum thread inside
// it. ThreadID 0 means "no thread".
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Message is an inbound text update, reduced to what the command layer
// needs.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type ChatInfo struct {
	ID    int64
	Type  string
	Title string
}

// Adapter is the platform client consumed by the core. Implementations
// must bound every network call by the given context.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	ChatInfo(ctx context.Context, chatID int64) (ChatInfo, error)
	// IsChatAdmin reports whether userID holds administrator (or owner)
	// rank in chatID. Used for destination-command delegation.
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}
