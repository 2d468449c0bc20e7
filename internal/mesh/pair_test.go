package mesh

import (
	"bytes"
	"testing"
)

// TestPairDelivery verifies that packets sent on one end come out of the
// other, in order and without aliasing the sender's buffer.
func TestPairDelivery(t *testing.T) {
	a, b := Pair()

	payload := []byte{1, 2, 3}
	if err := a.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	payload[0] = 99 // sender reuses its buffer

	if !b.Available() {
		t.Fatal("packet not available on the peer end")
	}
	pkt, ok := b.Receive()
	if !ok {
		t.Fatal("Receive returned nothing")
	}
	if !bytes.Equal(pkt.Payload, []byte{1, 2, 3}) {
		t.Errorf("payload: got %v, want [1 2 3]", pkt.Payload)
	}

	if a.Available() {
		t.Error("packet echoed back to the sender")
	}
	if _, ok := b.Receive(); ok {
		t.Error("Receive on an empty end returned a packet")
	}
}

// TestPairDropsOnFullQueue verifies that overflowing the queue loses
// packets instead of blocking, the way a saturated radio would.
func TestPairDropsOnFullQueue(t *testing.T) {
	a, b := Pair()

	for i := 0; i < pairQueueSize+10; i++ {
		if err := a.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	count := 0
	for {
		if _, ok := b.Receive(); !ok {
			break
		}
		count++
	}
	if count != pairQueueSize {
		t.Errorf("delivered packets: got %d, want %d", count, pairQueueSize)
	}
}

// TestPairInject verifies that Inject feeds this end's own receive queue,
// not the peer's.
func TestPairInject(t *testing.T) {
	a, b := Pair()

	a.Inject([]byte("local"))
	if b.Available() {
		t.Error("Inject leaked to the peer end")
	}

	pkt, ok := a.Receive()
	if !ok || string(pkt.Payload) != "local" {
		t.Fatalf("injected packet: got %v ok=%v", pkt, ok)
	}
}

// TestPairSendToClosedPeer verifies that sends fail once the peer closes.
func TestPairSendToClosedPeer(t *testing.T) {
	a, b := Pair()

	b.Close()
	if err := a.Send([]byte("too late")); err == nil {
		t.Fatal("Send to a closed peer succeeded")
	}
}
