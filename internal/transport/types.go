package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// ReplyTo is the message this one replies to (nil if none).
	ReplyTo *Message
	// Caption is set for media messages (relayed posts with an image).
	Caption string
}

// Body returns the text or the caption of a message.
func (m *Message) Body() string {
	if m == nil {
		return ""
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	// MessageText is the text or caption of the message carrying the button.
	MessageText string
	Data        string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Target returns the chat the referenced message lives in.
func (r MessageRef) Target() ChatTarget {
	return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID}
}

// Button is an inline keyboard button. Data is delivered back as Callback.Data.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Buttons is rendered as a single row of inline buttons.
	Buttons []Button
}

// Card is the rendered form of a relayed post.
//
// Telegram has no embeds, so adapters lay the fields out as an HTML message
// (or a photo caption when ImageURL is set). Color is kept as the accent of the card.
type Card struct {
	Title       string
	URL         string
	Color       int
	Description string
	ImageURL    string
	Footer      string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// SendPost delivers a card and returns a reference to the sent message.
	SendPost(ctx context.Context, to ChatTarget, card Card, opt *SendOptions) (MessageRef, error)
	// React sets an emoji reaction on a message.
	React(ctx context.Context, ref MessageRef, emoji string) error
	// CopyMessage copies an existing message (with media) into another chat.
	CopyMessage(ctx context.Context, from MessageRef, to ChatTarget) (MessageRef, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
