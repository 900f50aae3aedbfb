package firmchat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanup(t *testing.T) {

	t.Run("runs funcs in registration order", func(t *testing.T) {
		app := &App{logger: testLogger()}
		var order []string
		app.AddCleanupFunc(func(ctx context.Context) { order = append(order, "first") })
		app.AddCleanupFunc(func(ctx context.Context) { order = append(order, "second") })

		code := app.cleanup(context.Background())

		assert.Equal(t, 0, code)
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("reports timeout when a func hangs", func(t *testing.T) {
		app := &App{logger: testLogger()}
		block := make(chan struct{})
		defer close(block)
		app.AddCleanupFunc(func(ctx context.Context) { <-block })

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		code := app.cleanup(ctx)

		assert.Equal(t, 1, code)
	})

	t.Run("exit code is delivered once", func(t *testing.T) {
		// the shutdown goroutine is the only sender and Start the only
		// receiver; the channel must never be closed or raced past
		app := &App{logger: testLogger(), exit: make(chan int)}
		go func() {
			app.exit <- app.cleanup(context.Background())
		}()

		select {
		case code := <-app.exit:
			assert.Equal(t, 0, code)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for exit code")
		}
	})
}
