// Package platform describes the chat platform the engine acts on. The
// concrete gateway connection lives outside this module; the bridge
// subpackage talks to it over HTTP.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMessageNotFound means the message is already gone
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbidden means the bot lacks permission for the action
	ErrForbidden = errors.New("forbidden")

	// ErrMemberNotFound means the user is not a member of the guild
	ErrMemberNotFound = errors.New("member not found")
)

// Message is an inbound chat message
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	AuthorTag string    `json:"author_tag"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NoticeKind tells the platform glue how to render a notice
type NoticeKind string

const (
	NoticeWarning      NoticeKind = "warning"
	NoticeDeletion     NoticeKind = "deletion"
	NoticeConfirmation NoticeKind = "confirmation"
	NoticeInfo         NoticeKind = "info"
)

// Notice is a message the engine asks the platform to post
type Notice struct {
	ChannelID string            `json:"channel_id"`
	Kind      NoticeKind        `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Client is the set of platform operations the engine needs
type Client interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	FetchMessagesBefore(ctx context.Context, channelID, messageID string, limit int) ([]Message, error)
	FetchMessagesAfter(ctx context.Context, channelID, messageID string, limit int) ([]Message, error)
	SendNotice(ctx context.Context, n Notice) error
	// DeleteMessage returns ErrMessageNotFound when the message is already
	// gone and ErrForbidden when the bot may not delete it
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	MemberRoles(ctx context.Context, userID string) ([]string, error)
	TimeoutMember(ctx context.Context, userID string, d time.Duration, reason string) error
}

// Alert is an operator-facing event
type Alert struct {
	Event   string `json:"event"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// Alerter delivers operator alerts. Delivery is best effort.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// MultiAlerter fans an alert out to several sinks
type MultiAlerter []Alerter

func (m MultiAlerter) Alert(ctx context.Context, a Alert) {
	for _, al := range m {
		if al != nil {
			al.Alert(ctx, a)
		}
	}
}

// ChannelAlerter posts alerts as notices into an operator channel
type ChannelAlerter struct {
	Client    Client
	ChannelID string
}

func (c ChannelAlerter) Alert(ctx context.Context, a Alert) {
	if c.ChannelID == "" {
		return
	}
	_ = c.Client.SendNotice(ctx, Notice{
		ChannelID: c.ChannelID,
		Kind:      NoticeInfo,
		Title:     a.Event,
		Body:      a.Message,
	})
}
