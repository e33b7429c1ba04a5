package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostedClosuresRunInOrder(t *testing.T) {
	l := New(16)
	l.Start()
	defer l.Close()

	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() error {
			got = append(got, i)
			if i == 4 {
				close(done)
			}
			return nil
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closures did not run")
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestOnErrorStopsTheLoop(t *testing.T) {
	l := New(16)
	errCh := make(chan error, 1)
	l.OnError = func(_ context.Context, err error) {
		errCh <- err
	}
	l.Start()
	defer l.Close()

	boom := errors.New("boom")
	l.Post(func() error { return boom })

	select {
	case err := <-errCh:
		require.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("OnError was not called")
	}
}
