package platform_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(f *platformtest.Fake, n int) {
	for i := 0; i < n; i++ {
		f.Put(platform.Message{
			ID:        string(rune('a' + i)),
			ChannelID: "chan",
			AuthorTag: "user" + string(rune('a'+i)),
			Content:   "msg " + string(rune('a'+i)),
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		})
	}
}

func TestWindowFetcherOrdersAndMarksTarget(t *testing.T) {
	f := platformtest.New()
	seed(f, 6)

	w := &platform.WindowFetcher{Client: f, Before: 2, After: 1}
	got := w.FetchContext(context.Background(), "chan", "c")

	assert.Equal(t, "[usera]: msg a\n[userb]: msg b\n>>> [userc]: msg c\n[userd]: msg d", got)
}

func TestWindowFetcherToleratesPartialFailure(t *testing.T) {
	f := platformtest.New()
	seed(f, 3)

	w := &platform.WindowFetcher{Client: f, Before: 5, After: 5}
	got := w.FetchContext(context.Background(), "chan", "missing")
	assert.Equal(t, platform.ContextUnavailable, got)

	f.FetchErr = errors.New("gateway hiccup")
	got = w.FetchContext(context.Background(), "chan", "b")
	assert.Equal(t, platform.ContextUnavailable, got)
}

func TestFormatWindowWithoutTarget(t *testing.T) {
	before := []platform.Message{{AuthorTag: "a", Content: "one", CreatedAt: t0}}
	after := []platform.Message{{AuthorTag: "b", Content: "two", CreatedAt: t0.Add(time.Minute)}}
	assert.Equal(t, "[a]: one\n[b]: two", platform.FormatWindow(before, nil, after))
	assert.Equal(t, platform.ContextUnavailable, platform.FormatWindow(nil, nil, nil))
}

func TestAdmins(t *testing.T) {
	f := platformtest.New()
	f.Roles["200000000000000001"] = []string{"role-mod"}
	f.Roles["200000000000000002"] = []string{"role-member"}

	admins := platform.NewAdmins(f, []string{"100000000000000001"}, []string{"role-mod"})
	ctx := context.Background()

	tests := []struct {
		user string
		want bool
	}{
		{"100000000000000001", true},
		{"200000000000000001", true},
		{"200000000000000002", false},
		{"999999999999999999", false},
	}
	for _, tt := range tests {
		got, err := admins.IsAdmin(ctx, tt.user)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.user)
	}
}

func TestMultiAlerter(t *testing.T) {
	a, b := platformtest.New(), platformtest.New()
	platform.MultiAlerter{a, nil, b}.Alert(context.Background(), platform.Alert{Event: "x"})
	_, _, alertsA := a.Snapshot()
	_, _, alertsB := b.Snapshot()
	assert.Len(t, alertsA, 1)
	assert.Len(t, alertsB, 1)
}
