package dispatcher_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/request"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type poll struct {
	offset  int64
	timeout time.Duration
	allowed []string
}

// fakeSource returns queued batches, then empty batches.
type fakeSource struct {
	mu      sync.Mutex
	batches []string
	err     error
	polls   []poll
}

func (f *fakeSource) GetUpdates(_ context.Context, offset int64, timeout time.Duration, allowed []string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls = append(f.polls, poll{offset: offset, timeout: timeout, allowed: allowed})
	if f.err != nil {
		return nil, f.err
	}
	body := `{"ok":true,"result":[]}`
	if len(f.batches) > 0 {
		body, f.batches = f.batches[0], f.batches[1:]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polls)
}

func (f *fakeSource) lastPoll() poll {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[len(f.polls)-1]
}

// recorder collects handled requests.
type recorder struct {
	mu   sync.Mutex
	reqs []*request.Request
}

func (r *recorder) Handle(_ context.Context, conn *database.Conn, req *request.Request) {
	if conn == nil {
		panic("nil connection")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.reqs))
	for _, req := range r.reqs {
		out = append(out, req.Text)
	}
	return out
}

func message(updateID int64, chatType, text string, date time.Time) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":%d,"chat":{"id":%d,"type":%q},"from":{"id":11,"username":"alice"},"text":%q}}`,
		updateID, updateID*10, date.Unix(), 500+updateID, chatType, text)
}

func batch(updates ...string) string {
	out := `{"ok":true,"result":[`
	for i, u := range updates {
		if i > 0 {
			out += ","
		}
		out += u
	}
	return out + "]}"
}

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "bot.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newDispatcher(t *testing.T, src dispatcher.UpdateSource, h dispatcher.Handler, opts ...dispatcher.Option) *dispatcher.Dispatcher {
	t.Helper()
	opts = append([]dispatcher.Option{dispatcher.WithClock(clockwork.NewFakeClockAt(now))}, opts...)
	return dispatcher.New(src, openDB(t), h, opts...)
}

func TestWatermarkFollowsHighestSeenID(t *testing.T) {
	t.Parallel()

	src := &fakeSource{batches: []string{batch(
		message(5, "group", "no trigger", now),
		message(3, "group", "no trigger", now),
		message(7, "group", "no trigger", now),
	)}}
	rec := &recorder{}
	d := newDispatcher(t, src, rec)

	assert.Equal(t, int64(7), d.ProcessUpdates(context.Background()))
	d.Wait()
	assert.Empty(t, rec.texts(), "nothing matched a trigger")
	assert.Equal(t, int64(-99), src.lastPoll().offset)

	d.ProcessUpdates(context.Background())
	assert.Equal(t, int64(8), src.lastPoll().offset)
	assert.Equal(t, int64(7), d.Watermark())
}

func TestPollParameters(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	d := newDispatcher(t, src, &recorder{},
		dispatcher.WithInitialOffset(41),
		dispatcher.WithPollTimeout(3*time.Second),
		dispatcher.WithAllowedUpdates("message", "channel_post"),
	)

	d.ProcessUpdates(context.Background())
	assert.Equal(t, poll{offset: 42, timeout: 3 * time.Second, allowed: []string{"message", "channel_post"}}, src.lastPoll())
}

func TestFetchErrorKeepsWatermark(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("connection reset")}
	d := newDispatcher(t, src, &recorder{}, dispatcher.WithInitialOffset(10))

	assert.Equal(t, int64(10), d.ProcessUpdates(context.Background()))
	assert.Equal(t, int64(10), d.ProcessUpdates(context.Background()))
	assert.Equal(t, int64(11), src.lastPoll().offset)
}

func TestMalformedBatchesAreIgnored(t *testing.T) {
	t.Parallel()

	src := &fakeSource{batches: []string{
		`{"ok":true}`,
		`{"ok":true,"result":{"not":"an array"}}`,
		batch(
			`{"update_id":20}`,
			`{"update_id":21,"message":{"date":1,"text":"no chat"}}`,
			`{"update_id":22,"edited_message":{"chat":{"id":1,"type":"private"},"date":1}}`,
			fmt.Sprintf(`{"message":{"message_id":1,"date":%d,"chat":{"id":9,"type":"private"},"text":"no id"}}`, now.Unix()),
			message(23, "private", "kept", now),
		),
	}}
	rec := &recorder{}
	d := newDispatcher(t, src, rec, dispatcher.WithInitialOffset(0))

	ctx := context.Background()
	assert.Equal(t, int64(0), d.ProcessUpdates(ctx))
	assert.Equal(t, int64(0), d.ProcessUpdates(ctx))
	assert.Equal(t, int64(23), d.ProcessUpdates(ctx))
	d.Wait()
	assert.Equal(t, []string{"kept"}, rec.texts())
}

func TestStaleMessagesAreSkipped(t *testing.T) {
	t.Parallel()

	src := &fakeSource{batches: []string{batch(
		message(1, "private", "too old", now.Add(-5*time.Minute-time.Second)),
		message(2, "private", "just in time", now.Add(-5*time.Minute)),
		message(3, "group", "Echo old", now.Add(-time.Hour)),
	)}}
	rec := &recorder{}
	d := newDispatcher(t, src, rec, dispatcher.WithTriggers("Echo *"))

	assert.Equal(t, int64(3), d.ProcessUpdates(context.Background()))
	d.Wait()
	assert.Equal(t, []string{"just in time"}, rec.texts())
}

func TestTriggerFiltering(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		chatType string
		text     string
		triggers []string
		accepted bool
	}{
		{name: "group match", chatType: "group", text: "Echo hello", triggers: []string{"Echo *"}, accepted: true},
		{name: "group no match", chatType: "group", text: "hello", triggers: []string{"Echo *"}, accepted: false},
		{name: "private ignores triggers", chatType: "private", text: "hello", triggers: []string{"Echo *"}, accepted: true},
		{name: "supergroup second trigger", chatType: "supergroup", text: "Hi!", triggers: []string{"Echo *", "Hi!"}, accepted: true},
		{name: "channel match", chatType: "channel", text: "sky is blue", triggers: []string{"* is *"}, accepted: true},
		{name: "group without triggers", chatType: "group", text: "anything", triggers: nil, accepted: false},
		{name: "group without text", chatType: "group", text: "", triggers: []string{"*"}, accepted: false},
		{name: "private without text", chatType: "private", text: "", triggers: nil, accepted: true},
		{name: "case insensitive", chatType: "group", text: "echo hello", triggers: []string{"Echo *"}, accepted: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src := &fakeSource{batches: []string{batch(message(1, tc.chatType, tc.text, now))}}
			rec := &recorder{}
			d := newDispatcher(t, src, rec, dispatcher.WithTriggers(tc.triggers...))

			d.ProcessUpdates(context.Background())
			d.Wait()
			if tc.accepted {
				assert.Equal(t, []string{tc.text}, rec.texts())
				assert.Equal(t, int64(1), d.Stats().Received)
			} else {
				assert.Empty(t, rec.texts())
				assert.Zero(t, d.Stats().Received)
			}
		})
	}
}

func TestAcceptedRequestFields(t *testing.T) {
	t.Parallel()

	src := &fakeSource{batches: []string{batch(message(4, "group", `Echo hello "big world"`, now))}}
	rec := &recorder{}
	d := newDispatcher(t, src, rec, dispatcher.WithTriggers("Echo *"))

	d.ProcessUpdates(context.Background())
	d.Wait()
	require.Len(t, rec.reqs, 1)

	req := rec.reqs[0]
	assert.Equal(t, request.KindGroup, req.Kind)
	assert.Equal(t, []string{"Echo", "hello", "big world"}, req.Arguments)
	assert.Equal(t, int64(504), req.ChatID)
	assert.Equal(t, int64(40), req.MessageID)
	assert.Equal(t, int64(11), req.SenderID)
	assert.Equal(t, "alice", req.SenderName)
	assert.True(t, req.Timestamp.Equal(now))
	assert.False(t, req.HasAttachment())
}

func TestChannelPostAndUnknownSender(t *testing.T) {
	t.Parallel()

	post := fmt.Sprintf(`{"update_id":9,"channel_post":{"message_id":1,"date":%d,"chat":{"id":-100,"type":"channel"},"text":"Echo news"}}`, now.Unix())
	src := &fakeSource{batches: []string{batch(post)}}
	rec := &recorder{}
	d := newDispatcher(t, src, rec, dispatcher.WithTriggers("Echo *"))

	d.ProcessUpdates(context.Background())
	d.Wait()
	require.Len(t, rec.reqs, 1)
	assert.Equal(t, request.KindChannel, rec.reqs[0].Kind)
	assert.Equal(t, "unknown", rec.reqs[0].SenderName)
	assert.Zero(t, rec.reqs[0].SenderID)
}

func TestAttachments(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		payload string
		want    *request.Attachment
	}{
		{
			name:    "voice",
			payload: `"voice":{"file_id":"v1","file_size":1234}`,
			want:    &request.Attachment{Kind: request.AttachmentVoice, FileID: "v1", Size: 1234},
		},
		{
			name:    "voice wins over document",
			payload: `"document":{"file_id":"d1"},"voice":{"file_id":"v2","file_size":1}`,
			want:    &request.Attachment{Kind: request.AttachmentVoice, FileID: "v2", Size: 1},
		},
		{
			name:    "largest photo",
			payload: `"photo":[{"file_id":"small","file_size":10},{"file_id":"large","file_size":900},{"file_id":"mid","file_size":300}]`,
			want:    &request.Attachment{Kind: request.AttachmentPhoto, FileID: "large", Size: 900},
		},
		{
			name:    "voice without file id",
			payload: `"voice":{"file_size":1}`,
			want:    nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			update := fmt.Sprintf(`{"update_id":1,"message":{"message_id":1,"date":%d,"chat":{"id":1,"type":"private"},%s}}`, now.Unix(), tc.payload)
			src := &fakeSource{batches: []string{batch(update)}}
			rec := &recorder{}
			d := newDispatcher(t, src, rec)

			d.ProcessUpdates(context.Background())
			d.Wait()
			require.Len(t, rec.reqs, 1)
			assert.Equal(t, tc.want, rec.reqs[0].Attachment)
			assert.Empty(t, rec.reqs[0].Arguments)
		})
	}
}

func TestMentions(t *testing.T) {
	t.Parallel()

	// "😀" is two UTF-16 code units, so "@PollBot" starts at offset 3.
	text := "😀 @PollBot and @other"
	update := fmt.Sprintf(`{"update_id":1,"message":{"message_id":1,"date":%d,"chat":{"id":1,"type":"group"},"text":%q,"entities":[
		{"type":"mention","offset":3,"length":8},
		{"type":"bold","offset":0,"length":2},
		{"type":"mention","offset":16,"length":6},
		{"type":"mention","offset":20,"length":50}
	]}}`, now.Unix(), text)

	src := &fakeSource{batches: []string{batch(update)}}
	rec := &recorder{}
	d := newDispatcher(t, src, rec, dispatcher.WithTriggers("*@*"), dispatcher.WithBotUsername("pollbot"))

	d.ProcessUpdates(context.Background())
	d.Wait()
	require.Len(t, rec.reqs, 1)
	assert.Equal(t, []string{"@PollBot", "@other"}, rec.reqs[0].Mentions)
	assert.True(t, rec.reqs[0].MentionsBot)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()

	src := &fakeSource{batches: []string{
		batch(message(1, "private", "boom", now)),
		batch(message(2, "private", "fine", now)),
	}}
	rec := &recorder{}
	handler := dispatcher.HandlerFunc(func(ctx context.Context, conn *database.Conn, req *request.Request) {
		if req.Text == "boom" {
			panic("handler exploded")
		}
		rec.Handle(ctx, conn, req)
	})
	d := newDispatcher(t, src, handler)

	d.ProcessUpdates(context.Background())
	d.Wait()
	d.ProcessUpdates(context.Background())
	d.Wait()

	assert.Equal(t, []string{"fine"}, rec.texts())
	assert.Equal(t, int64(2), d.Stats().Received)
	assert.Zero(t, d.Stats().InFlight)
}

func TestMaxInFlightDropsExcessRequests(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var handled atomic.Int32
	handler := dispatcher.HandlerFunc(func(context.Context, *database.Conn, *request.Request) {
		started <- struct{}{}
		<-release
		handled.Add(1)
	})

	src := &fakeSource{batches: []string{
		batch(message(1, "private", "first", now)),
		batch(message(2, "private", "second", now)),
	}}
	d := newDispatcher(t, src, handler, dispatcher.WithMaxInFlight(1))

	d.ProcessUpdates(context.Background())
	<-started
	assert.Equal(t, int64(1), d.Stats().InFlight)

	d.ProcessUpdates(context.Background())
	close(release)
	d.Wait()

	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, int64(2), d.Watermark())
}

func TestRequestTasksOutliveCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var sawCancel atomic.Bool
	handler := dispatcher.HandlerFunc(func(ctx context.Context, conn *database.Conn, _ *request.Request) {
		cancel()
		sawCancel.Store(ctx.Err() != nil)
		assert.True(t, conn.KV().SetString(ctx, "k", "v", 0))
	})

	src := &fakeSource{batches: []string{batch(message(1, "private", "x", now))}}
	d := newDispatcher(t, src, handler)

	d.ProcessUpdates(ctx)
	d.Wait()
	assert.False(t, sawCancel.Load())
}

func TestRunCallsCronAndStops(t *testing.T) {
	t.Parallel()

	src := &fakeSource{batches: []string{batch(message(1, "private", "hello", time.Now()))}}
	rec := &recorder{}
	var cronCalls atomic.Int32
	cron := func(ctx context.Context, conn *database.Conn) {
		if conn != nil {
			cronCalls.Add(1)
		}
	}

	d := dispatcher.New(src, openDB(t), rec,
		dispatcher.WithCron(cron),
		dispatcher.WithIdleSleep(time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(rec.texts()) == 1 && cronCalls.Load() >= 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	d.Wait()

	assert.Equal(t, int64(1), d.Watermark())
	assert.Equal(t, int64(1), d.Stats().Received)
}

func TestRunSleepsOnlyWithoutProgress(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(now)
	src := &fakeSource{batches: []string{batch(message(1, "private", "hello", now))}}
	rec := &recorder{}
	d := dispatcher.New(src, openDB(t), rec,
		dispatcher.WithClock(clock),
		dispatcher.WithIdleSleep(time.Minute),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()

	// The batch advanced the watermark, so the next poll runs without
	// sleeping; the empty one that follows puts the loop to sleep.
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, 2, src.pollCount())
	assert.Equal(t, int64(2), src.lastPoll().offset)

	clock.Advance(time.Minute - time.Second)
	assert.Never(t, func() bool { return src.pollCount() > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return src.pollCount() == 3 }, 5*time.Second, time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, 3, src.pollCount())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	d.Wait()
	assert.Equal(t, []string{"hello"}, rec.texts())
}
