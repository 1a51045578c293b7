package ws

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestHub_Run_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(ctx)

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("хаб не остановился после отмены контекста")
	}

	// После остановки регистрация и рассылка не блокируют вызывающего.
	hub.Register(&Client{})
	err := hub.BroadcastToUser(uuid.New(), "match.accepted", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
