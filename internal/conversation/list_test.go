package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sudooom.social.client/internal/live"
	"sudooom.social.client/internal/model"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func preview(id string, minutes int, unread int) model.ConversationPreview {
	return model.ConversationPreview{
		Interlocutor: model.User{ID: id, Username: "user_" + id},
		LastMessage:  model.Message{ID: "m-" + id, Text: "hi", SenderID: id},
		UpdatedAt:    base.Add(time.Duration(minutes) * time.Minute),
		UnreadCount:  unread,
	}
}

func ids(items []model.ConversationPreview) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.Interlocutor.ID
	}
	return out
}

func assertSorted(t *testing.T, items []model.ConversationPreview) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].UpdatedAt.After(items[i-1].UpdatedAt),
			"item %d (%s) newer than item %d (%s)", i, items[i].Interlocutor.ID, i-1, items[i-1].Interlocutor.ID)
	}
}

type fakeFetcher struct {
	mu      sync.Mutex
	pages   [][]model.ConversationPreview
	cursors []time.Time
	listErr error
	// gate 非空时 ListConversations 阻塞到 gate 关闭
	gate chan struct{}

	conversations map[string]model.ConversationPreview
	getErr        error
	getCalls      int
	// onGet 在 GetConversation 返回前调用，用来模拟并发插入
	onGet func()
}

func (f *fakeFetcher) ListConversations(ctx context.Context, before time.Time, limit int) ([]model.ConversationPreview, error) {
	f.mu.Lock()
	f.cursors = append(f.cursors, before)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeFetcher) GetConversation(ctx context.Context, id string) (*model.ConversationPreview, error) {
	f.mu.Lock()
	f.getCalls++
	onGet := f.onGet
	f.mu.Unlock()

	if onGet != nil {
		onGet()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	return &c, nil
}

func (f *fakeFetcher) Cursors() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.cursors...)
}

type fakeCounter struct {
	mu sync.Mutex
	n  int
}

func (c *fakeCounter) IncrementUnreadMessages(n int) {
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()
}

func (c *fakeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newList(f *fakeFetcher, opts ...Option) (*List, *fakeCounter) {
	counter := &fakeCounter{}
	return New(f, counter, "self", opts...), counter
}

func TestAddConversation_HeadInsertionOrder(t *testing.T) {
	l, _ := newList(&fakeFetcher{})

	for i, id := range []string{"a", "b", "c", "d"} {
		assert.True(t, l.AddConversation(preview(id, i, 0)))
	}

	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(l.Items()))
}

func TestAddConversation_Idempotent(t *testing.T) {
	l, _ := newList(&fakeFetcher{})

	first := preview("a", 0, 2)
	second := preview("a", 10, 7)
	second.LastMessage.Text = "overwritten?"

	assert.True(t, l.AddConversation(first))
	assert.False(t, l.AddConversation(second))

	items := l.Items()
	require.Len(t, items, 1)
	if diff := cmp.Diff(first, items[0]); diff != "" {
		t.Errorf("entry changed (-want +got):\n%s", diff)
	}
}

func TestUpdateConversation_Resorts(t *testing.T) {
	l, _ := newList(&fakeFetcher{})
	l.AddConversation(preview("a", 1, 0))
	l.AddConversation(preview("b", 2, 0))
	l.AddConversation(preview("c", 3, 0))

	newest := base.Add(time.Hour)
	text := model.Message{ID: "m9", Text: "latest", SenderID: "self"}
	assert.True(t, l.UpdateConversation("a", Patch{UpdatedAt: &newest, LastMessage: &text}))

	items := l.Items()
	assertSorted(t, items)
	assert.Equal(t, []string{"a", "c", "b"}, ids(items))
	assert.Equal(t, "latest", items[0].LastMessage.Text)
	assert.Equal(t, 0, items[0].UnreadCount)
}

func TestUpdateConversation_NoMatch(t *testing.T) {
	l, _ := newList(&fakeFetcher{})
	l.AddConversation(preview("a", 1, 0))
	before := l.Items()

	unread := 5
	assert.False(t, l.UpdateConversation("zzz", Patch{UnreadCount: &unread}))
	assert.Empty(t, cmp.Diff(before, l.Items()))
}

func TestMarkRead(t *testing.T) {
	l, _ := newList(&fakeFetcher{})
	l.AddConversation(preview("a", 3, 4))
	l.AddConversation(preview("b", 2, 2))
	l.AddConversation(preview("c", 1, 1))
	order := ids(l.Items())

	assert.Equal(t, 2, l.MarkRead("b"))
	assert.Equal(t, 0, l.MarkRead("b"))
	assert.Equal(t, 0, l.MarkRead("missing"))

	items := l.Items()
	assert.Equal(t, order, ids(items))
	unread := map[string]int{}
	for _, c := range items {
		unread[c.Interlocutor.ID] = c.UnreadCount
	}
	assert.Equal(t, map[string]int{"a": 4, "b": 0, "c": 1}, unread)
	assert.Equal(t, 5, l.TotalUnread())
}

func TestLoadMore_UsesOldestCursorAndAppends(t *testing.T) {
	f := &fakeFetcher{pages: [][]model.ConversationPreview{
		{preview("x", -10, 0), preview("y", -20, 1)},
	}}
	l, _ := newList(f, WithPageSize(2))
	l.AddConversation(preview("a", 0, 0))
	l.AddConversation(preview("b", 5, 0))

	l.LoadMore(context.Background())

	cursors := f.Cursors()
	require.Len(t, cursors, 1)
	assert.True(t, cursors[0].Equal(base), "cursor should be the oldest updated_at")

	items := l.Items()
	assert.Equal(t, []string{"b", "a", "x", "y"}, ids(items))
	assertSorted(t, items)
	assert.True(t, l.HasMore())
	assert.False(t, l.Loading())
}

func TestLoadMore_CursorIgnoresInsertionOrder(t *testing.T) {
	f := &fakeFetcher{pages: [][]model.ConversationPreview{{}}}
	l, _ := newList(f)
	l.AddConversation(preview("new", 60, 0))
	l.AddConversation(preview("old", 1, 0))
	require.Equal(t, []string{"old", "new"}, ids(l.Items()))

	l.LoadMore(context.Background())

	cursors := f.Cursors()
	require.Len(t, cursors, 1)
	want := base.Add(time.Minute)
	assert.True(t, cursors[0].Equal(want), "cursor %v, want %v", cursors[0], want)
}

func TestLoadMore_ShortPageSetsNoMore(t *testing.T) {
	f := &fakeFetcher{pages: [][]model.ConversationPreview{
		{preview("x", -10, 0)},
	}}
	l, _ := newList(f)
	l.AddConversation(preview("a", 0, 0))

	l.LoadMore(context.Background())
	assert.False(t, l.HasMore())

	l.LoadMore(context.Background())
	assert.Len(t, f.Cursors(), 1, "no request once no-more is flagged")
}

func TestLoadMore_EmptyListIsNoop(t *testing.T) {
	f := &fakeFetcher{}
	l, _ := newList(f)

	l.LoadMore(context.Background())
	assert.Empty(t, f.Cursors())
}

func TestLoadMore_FailureLeavesStateUnchanged(t *testing.T) {
	f := &fakeFetcher{listErr: errors.New("network error")}
	l, _ := newList(f)
	l.AddConversation(preview("a", 0, 1))
	before := l.Items()

	l.LoadMore(context.Background())

	assert.Empty(t, cmp.Diff(before, l.Items()))
	assert.True(t, l.HasMore())
	assert.False(t, l.Loading())
}

func TestLoadMore_SkipsDuplicates(t *testing.T) {
	f := &fakeFetcher{pages: [][]model.ConversationPreview{
		{preview("a", -5, 9), preview("x", -10, 0)},
	}}
	l, _ := newList(f, WithPageSize(2))
	l.AddConversation(preview("a", 0, 1))

	l.LoadMore(context.Background())

	items := l.Items()
	assert.Equal(t, []string{"a", "x"}, ids(items))
	assert.Equal(t, 1, items[0].UnreadCount, "existing entry must not be overwritten")
}

func TestLoadMore_ConcurrentCallsDoNotDuplicate(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	f := &fakeFetcher{
		gate: gate,
		pages: [][]model.ConversationPreview{
			{preview("x", -10, 0), preview("y", -20, 0)},
			{preview("x", -10, 0), preview("y", -20, 0)},
		},
	}
	l, _ := newList(f, WithPageSize(2))
	l.AddConversation(preview("a", 0, 0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.LoadMore(context.Background())
	}()
	assert.Eventually(t, l.Loading, time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		l.LoadMore(context.Background())
	}
	close(gate)
	wg.Wait()

	assert.Len(t, f.Cursors(), 1)
	assert.Equal(t, []string{"a", "x", "y"}, ids(l.Items()))
}

func TestRefresh_FencesStaleLoadMore(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	f := &fakeFetcher{
		gate:  gate,
		pages: [][]model.ConversationPreview{{preview("stale", -30, 0)}},
	}
	l, _ := newList(f)
	l.AddConversation(preview("a", 0, 0))

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.LoadMore(context.Background())
	}()
	assert.Eventually(t, l.Loading, time.Second, 5*time.Millisecond)

	// Refresh 的请求不受 gate 限制
	f.mu.Lock()
	f.gate = nil
	f.pages = append([][]model.ConversationPreview{{preview("fresh", 10, 0)}}, f.pages...)
	f.mu.Unlock()
	require.NoError(t, l.Refresh(context.Background()))

	close(gate)
	<-done

	assert.Equal(t, []string{"fresh"}, ids(l.Items()))
	assert.False(t, l.Loading())
}

func TestHandlePrivateMessage_NewConversation(t *testing.T) {
	u42 := model.User{ID: "U42", Username: "u42"}
	fetched := model.ConversationPreview{Interlocutor: u42, UpdatedAt: base.Add(-time.Hour), UnreadCount: 7}
	f := &fakeFetcher{conversations: map[string]model.ConversationPreview{"U42": fetched}}
	l, counter := newList(f)
	l.AddConversation(preview("a", 5, 0))
	l.AddConversation(preview("b", 1, 0))

	msg := live.PrivateMessage{ID: "m1", Sender: u42, RecipientID: "self", Text: "hello", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, l.HandlePrivateMessage(context.Background(), msg))

	items := l.Items()
	require.Len(t, items, 3)
	head := items[0]
	assert.Equal(t, "U42", head.Interlocutor.ID)
	assert.Equal(t, 1, head.UnreadCount)
	assert.Equal(t, "hello", head.LastMessage.Text)
	assert.True(t, head.UpdatedAt.Equal(msg.CreatedAt))
	assert.Equal(t, 1, counter.Value())
	assertSorted(t, items)
}

func TestHandlePrivateMessage_ExistingConversation(t *testing.T) {
	f := &fakeFetcher{}
	l, counter := newList(f)
	l.AddConversation(preview("U42", 0, 2))
	l.AddConversation(preview("a", 10, 0))

	msg := live.PrivateMessage{ID: "m2", Sender: model.User{ID: "U42"}, Text: "again", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, l.HandlePrivateMessage(context.Background(), msg))

	items := l.Items()
	assert.Equal(t, []string{"U42", "a"}, ids(items))
	assert.Equal(t, 3, items[0].UnreadCount)
	assert.Equal(t, "again", items[0].LastMessage.Text)
	assert.Equal(t, "m2", items[0].LastMessage.ID)
	assert.Equal(t, 1, counter.Value())
	assert.Equal(t, 0, f.getCalls)
}

func TestHandlePrivateMessage_SelfIgnored(t *testing.T) {
	f := &fakeFetcher{}
	l, counter := newList(f)
	l.AddConversation(preview("U42", 0, 2))
	before := l.Items()

	msg := live.PrivateMessage{ID: "m3", Sender: model.User{ID: "self"}, RecipientID: "U42", Text: "mine", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, l.HandlePrivateMessage(context.Background(), msg))

	assert.Empty(t, cmp.Diff(before, l.Items()))
	assert.Equal(t, 0, counter.Value())
	assert.Equal(t, 0, f.getCalls)
}

func TestHandlePrivateMessage_FetchFailureDropsEntry(t *testing.T) {
	f := &fakeFetcher{getErr: errors.New("gateway down")}
	l, counter := newList(f)
	l.AddConversation(preview("a", 0, 0))

	msg := live.PrivateMessage{ID: "m1", Sender: model.User{ID: "U42"}, CreatedAt: base}
	assert.Error(t, l.HandlePrivateMessage(context.Background(), msg))

	assert.Equal(t, []string{"a"}, ids(l.Items()))
	assert.Equal(t, 0, counter.Value())
}

func TestHandlePrivateMessage_ConcurrentAddDuringFetch(t *testing.T) {
	u42 := model.User{ID: "U42"}
	f := &fakeFetcher{conversations: map[string]model.ConversationPreview{
		"U42": {Interlocutor: u42, UpdatedAt: base},
	}}
	l, counter := newList(f)
	f.onGet = func() {
		l.AddConversation(preview("U42", -5, 3))
	}

	msg := live.PrivateMessage{ID: "m1", Sender: u42, Text: "race", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, l.HandlePrivateMessage(context.Background(), msg))

	items := l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].UnreadCount)
	assert.Equal(t, "race", items[0].LastMessage.Text)
	assert.Equal(t, 1, counter.Value())
}

func TestAttach_DispatchesPrivateMessages(t *testing.T) {
	f := &fakeFetcher{}
	l, counter := newList(f)
	l.AddConversation(preview("U42", 0, 0))

	bus := live.NewBus(nil)
	sub := l.Attach(context.Background(), bus)

	frame, err := live.EncodeFrame(live.CategoryPrivateMessage, live.PrivateMessage{
		ID: "m1", Sender: model.User{ID: "U42"}, Text: "via bus", CreatedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)
	ev, err := live.DecodeFrame(frame)
	require.NoError(t, err)

	bus.Publish(ev)
	assert.Equal(t, 1, counter.Value())

	sub.Unsubscribe()
	bus.Publish(ev)
	assert.Equal(t, 1, counter.Value())
}

func TestWatch(t *testing.T) {
	l, _ := newList(&fakeFetcher{})

	var seen [][]string
	cancel := l.Watch(func(items []model.ConversationPreview) {
		seen = append(seen, ids(items))
	})

	l.AddConversation(preview("a", 0, 1))
	l.MarkRead("a")
	cancel()
	l.AddConversation(preview("b", 1, 0))

	assert.Equal(t, [][]string{{"a"}, {"a"}}, seen)
}
