package packetqueue

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestInOrderDeliveryPassesThrough(t *testing.T) {
	q := New(8)
	q.Push(pkt(1))
	q.Push(pkt(2))

	p, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(1), p.SequenceNumber)

	p, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(2), p.SequenceNumber)
}

func TestOutOfOrderIsReordered(t *testing.T) {
	q := New(8)
	q.Push(pkt(1))
	q.Push(pkt(3))
	q.Push(pkt(2))

	var seqs []uint16
	for i := 0; i < 3; i++ {
		p, ok := q.Pop()
		require.True(t, ok)
		seqs = append(seqs, p.SequenceNumber)
	}
	require.Equal(t, []uint16{1, 2, 3}, seqs)
}

func TestDuplicateIsDropped(t *testing.T) {
	q := New(8)
	q.Push(pkt(1))
	q.Push(pkt(1))
	q.Push(pkt(2))

	p, _ := q.Pop()
	require.Equal(t, uint16(1), p.SequenceNumber)
	p, _ = q.Pop()
	require.Equal(t, uint16(2), p.SequenceNumber)
	require.Equal(t, 0, q.Len())
}

func TestOverflowDropsOldest(t *testing.T) {
	q := New(2)
	q.Push(pkt(1))
	q.Push(pkt(2))
	q.Push(pkt(3))

	require.Equal(t, 1, q.Dropped())
	require.Equal(t, 2, q.Len())

	p, _ := q.Pop()
	require.Equal(t, uint16(2), p.SequenceNumber)
}

func TestCloseUnblocksPop(t *testing.T) {
	q := New(4)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}

func TestLargeDiscontinuityResets(t *testing.T) {
	q := New(128)
	q.Push(pkt(1))
	p, _ := q.Pop()
	require.Equal(t, uint16(1), p.SequenceNumber)

	q.Push(pkt(5000))
	p, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(5000), p.SequenceNumber)
}
