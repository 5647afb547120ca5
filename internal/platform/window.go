package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ContextUnavailable is the snapshot recorded when no surrounding message
// could be fetched
const ContextUnavailable = "(context unavailable)"

const targetMarker = ">>> "

// ContextFetcher renders the conversation around a message as text
type ContextFetcher interface {
	FetchContext(ctx context.Context, channelID, messageID string) string
}

// WindowFetcher fetches up to Before messages before and After messages
// after the target, plus the target itself, concurrently. A failed fetch
// drops its part of the window.
type WindowFetcher struct {
	Client Client
	Before int
	After  int
}

func (w *WindowFetcher) FetchContext(ctx context.Context, channelID, messageID string) string {
	var before, after []Message
	var target *Message

	var g errgroup.Group
	if w.Before > 0 {
		g.Go(func() error {
			msgs, err := w.Client.FetchMessagesBefore(ctx, channelID, messageID, w.Before)
			if err != nil {
				log.Warn().Err(err).Str("message_id", messageID).Msg("failed to fetch messages before target")
				return nil
			}
			before = msgs
			return nil
		})
	}
	g.Go(func() error {
		m, err := w.Client.FetchMessage(ctx, channelID, messageID)
		if err != nil {
			log.Warn().Err(err).Str("message_id", messageID).Msg("failed to fetch target message")
			return nil
		}
		target = m
		return nil
	})
	if w.After > 0 {
		g.Go(func() error {
			msgs, err := w.Client.FetchMessagesAfter(ctx, channelID, messageID, w.After)
			if err != nil {
				log.Warn().Err(err).Str("message_id", messageID).Msg("failed to fetch messages after target")
				return nil
			}
			after = msgs
			return nil
		})
	}
	_ = g.Wait()

	return FormatWindow(before, target, after)
}

// FormatWindow orders messages oldest first, one "[author]: content" line
// each, with the target line marked
func FormatWindow(before []Message, target *Message, after []Message) string {
	type line struct {
		msg    Message
		target bool
	}
	lines := make([]line, 0, len(before)+len(after)+1)
	for _, m := range before {
		lines = append(lines, line{msg: m})
	}
	if target != nil {
		lines = append(lines, line{msg: *target, target: true})
	}
	for _, m := range after {
		lines = append(lines, line{msg: m})
	}
	if len(lines) == 0 {
		return ContextUnavailable
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].msg.CreatedAt.Before(lines[j].msg.CreatedAt)
	})

	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if l.target {
			b.WriteString(targetMarker)
		}
		fmt.Fprintf(&b, "[%s]: %s", l.msg.AuthorTag, l.msg.Content)
	}
	return b.String()
}
