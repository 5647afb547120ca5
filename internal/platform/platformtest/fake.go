// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fairguard/backend/internal/platform"
)

type Timeout struct {
	UserID   string
	Duration time.Duration
	Reason   string
}

// Fake records every action and serves messages from memory
type Fake struct {
	mu sync.Mutex

	Messages map[string]platform.Message
	Roles    map[string][]string

	// DeleteErr, when set, is returned by DeleteMessage
	DeleteErr  error
	FetchErr   error
	TimeoutErr error

	Notices  []platform.Notice
	Deleted  []string
	Timeouts []Timeout
	Alerts   []platform.Alert
}

var (
	_ platform.Client  = (*Fake)(nil)
	_ platform.Alerter = (*Fake)(nil)
)

func New() *Fake {
	return &Fake{
		Messages: make(map[string]platform.Message),
		Roles:    make(map[string][]string),
	}
}

func (f *Fake) Put(m platform.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[m.ID] = m
}

func (f *Fake) FetchMessage(ctx context.Context, channelID, messageID string) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	m, ok := f.Messages[messageID]
	if !ok || m.ChannelID != channelID {
		return nil, platform.ErrMessageNotFound
	}
	return &m, nil
}

func (f *Fake) FetchMessagesBefore(ctx context.Context, channelID, messageID string, limit int) ([]platform.Message, error) {
	return f.around(channelID, messageID, limit, true)
}

func (f *Fake) FetchMessagesAfter(ctx context.Context, channelID, messageID string, limit int) ([]platform.Message, error) {
	return f.around(channelID, messageID, limit, false)
}

func (f *Fake) around(channelID, messageID string, limit int, before bool) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	pivot, ok := f.Messages[messageID]
	if !ok {
		return nil, platform.ErrMessageNotFound
	}

	var out []platform.Message
	for _, m := range f.Messages {
		if m.ChannelID != channelID || m.ID == messageID {
			continue
		}
		if before == m.CreatedAt.Before(pivot.CreatedAt) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		if before {
			out = out[len(out)-limit:]
		} else {
			out = out[:limit]
		}
	}
	return out, nil
}

func (f *Fake) SendNotice(ctx context.Context, n platform.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notices = append(f.Notices, n)
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.Messages[messageID]; !ok {
		return platform.ErrMessageNotFound
	}
	delete(f.Messages, messageID)
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *Fake) MemberRoles(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles, ok := f.Roles[userID]
	if !ok {
		return nil, platform.ErrMemberNotFound
	}
	return roles, nil
}

func (f *Fake) TimeoutMember(ctx context.Context, userID string, d time.Duration, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TimeoutErr != nil {
		return f.TimeoutErr
	}
	f.Timeouts = append(f.Timeouts, Timeout{UserID: userID, Duration: d, Reason: reason})
	return nil
}

func (f *Fake) Alert(ctx context.Context, a platform.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Alerts = append(f.Alerts, a)
}

// Snapshot returns copies of the recorded actions
func (f *Fake) Snapshot() (notices []platform.Notice, deleted []string, alerts []platform.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Notice(nil), f.Notices...),
		append([]string(nil), f.Deleted...),
		append([]platform.Alert(nil), f.Alerts...)
}
