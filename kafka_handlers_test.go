package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type readerStub struct {
	fetchErrs []error
	messages  []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *readerStub) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *readerStub) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *readerStub) Close() error {
	r.closed = true
	return nil
}

func changeEventMessage(t *testing.T, offset int64, trigger string, id string, raw string) kafka.Message {
	value, err := json.Marshal(changeEvent{Trigger: trigger, Id: id, Event: decodeEvent(t, raw)})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func TestConsumeChangeEvents(t *testing.T) {
	f := newHandlerFixture()
	f.seedChatUsers()

	reader := &readerStub{messages: []kafka.Message{
		changeEventMessage(t, 1, triggerMessageCreated, "e1", messageCreatedEvent),
		{Offset: 2, Value: []byte("not json")},
		changeEventMessage(t, 3, "users.deleted", "e3", messageCreatedEvent),
		changeEventMessage(t, 4, triggerCallCreated, "e4", callCreatedEvent),
	}}

	f.h.consumeChangeEvents(context.Background(), reader, testLogger())

	require.True(t, reader.closed)
	require.Len(t, reader.committed, 4)
	require.Len(t, f.fcm.sent, 2)
	require.Equal(t, pushKindMessage, f.fcm.sent[0].Kind)
	require.Equal(t, pushKindCall, f.fcm.sent[1].Kind)
}

func TestConsumeChangeEventsContinuesAfterFetchError(t *testing.T) {
	defer func(d time.Duration) { fetchRetryDelay = d }(fetchRetryDelay)
	fetchRetryDelay = time.Millisecond

	f := newHandlerFixture()
	f.seedChatUsers()

	reader := &readerStub{
		fetchErrs: []error{errors.New("broker not available"), errors.New("broker not available")},
		messages: []kafka.Message{
			changeEventMessage(t, 1, triggerMessageCreated, "e1", messageCreatedEvent),
		},
	}

	f.h.consumeChangeEvents(context.Background(), reader, testLogger())

	require.True(t, reader.closed)
	require.Len(t, reader.committed, 1)
	require.Len(t, f.fcm.sent, 1)
}

func TestConsumeChangeEventsStopsOnCancelWhileWaiting(t *testing.T) {
	defer func(d time.Duration) { fetchRetryDelay = d }(fetchRetryDelay)
	fetchRetryDelay = time.Hour

	f := newHandlerFixture()
	reader := &readerStub{fetchErrs: []error{errors.New("broker not available")}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.h.consumeChangeEvents(ctx, reader, testLogger())
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
	require.True(t, reader.closed)
}
