package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/walletbot/core/telegram/sender"
)

func TestSendAsyncInlineWithoutDispatcher(t *testing.T) {
	SetDispatcher(nil)
	ran := false
	require.NoError(t, SendAsync(context.Background(), "send.text", "sendMessage", func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestSendAsyncThroughDispatcher(t *testing.T) {
	d := sender.NewDispatcher(sender.Options{Workers: 1, QueueSize: 4})
	SetDispatcher(d)
	t.Cleanup(func() { SetDispatcher(nil) })

	done := make(chan struct{})
	require.NoError(t, SendAsync(context.Background(), "send.text", "sendMessage", func() error {
		close(done)
		return nil
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job not executed")
	}
	d.Close()
}

func TestSendAsyncFallsBackAfterClose(t *testing.T) {
	d := sender.NewDispatcher(sender.Options{Workers: 1})
	d.Close()
	SetDispatcher(d)
	t.Cleanup(func() { SetDispatcher(nil) })

	ran := false
	require.NoError(t, SendAsync(context.Background(), "send.text", "sendMessage", func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
