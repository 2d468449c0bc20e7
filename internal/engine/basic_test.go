package engine_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/meshfiles/zmbridge/internal/engine"
	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/storage"
	"github.com/meshfiles/zmbridge/internal/stream"
)

// runTransfer steps a sender and a receiver engine against each other until
// both report a terminal result, failing the test if either errors or the
// transfer never finishes.
func runTransfer(t *testing.T, sender, receiver engine.Engine) {
	t.Helper()

	senderDone, receiverDone := false, false
	for i := 0; i < 10000; i++ {
		if !senderDone {
			switch sender.Step() {
			case engine.Complete:
				senderDone = true
			case engine.Error:
				t.Fatal("sender engine reported an error")
			}
		}
		if !receiverDone {
			switch receiver.Step() {
			case engine.Complete:
				receiverDone = true
			case engine.Error:
				t.Fatal("receiver engine reported an error")
			}
		}
		if senderDone && receiverDone {
			return
		}
	}
	t.Fatal("transfer did not finish")
}

// TestBasicTransfer moves a file between two engines joined by an in-memory
// mesh pair and verifies the received bytes match.
func TestBasicTransfer(t *testing.T) {
	endA, endB := mesh.Pair()
	sender := engine.NewBasic(stream.New(endA, 0))
	receiver := engine.NewBasic(stream.New(endB, 0))

	content := make([]byte, 5000)
	for i := range content {
		content[i] = byte(i * 13)
	}

	src := storage.NewMemStore()
	src.Put("data.bin", content)
	srcFile, err := src.Open("data.bin", storage.Read)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}

	dst := storage.NewMemStore()
	dstFile, err := dst.Open("data.bin", storage.Write)
	if err != nil {
		t.Fatalf("open destination: %v", err)
	}

	sender.BeginSend(srcFile, time.Second)
	receiver.BeginReceive(dstFile, time.Second)
	runTransfer(t, sender, receiver)

	if transferred, total := receiver.Progress(); transferred != int64(len(content)) || total != int64(len(content)) {
		t.Errorf("receiver progress: got %d/%d, want %d/%d", transferred, total, len(content), len(content))
	}

	dstFile.Close()
	got, ok := dst.Get("data.bin")
	if !ok {
		t.Fatal("received file missing from the store")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("received content differs: got %d bytes, want %d", len(got), len(content))
	}
}

// TestBasicEmptyFile verifies that a zero-length file completes immediately
// on both sides.
func TestBasicEmptyFile(t *testing.T) {
	endA, endB := mesh.Pair()
	sender := engine.NewBasic(stream.New(endA, 0))
	receiver := engine.NewBasic(stream.New(endB, 0))

	src := storage.NewMemStore()
	src.Put("empty", nil)
	srcFile, _ := src.Open("empty", storage.Read)

	dst := storage.NewMemStore()
	dstFile, _ := dst.Open("empty", storage.Write)

	sender.BeginSend(srcFile, time.Second)
	receiver.BeginReceive(dstFile, time.Second)
	runTransfer(t, sender, receiver)

	dstFile.Close()
	if got, _ := dst.Get("empty"); len(got) != 0 {
		t.Errorf("empty transfer produced %d bytes", len(got))
	}
}

// TestBasicInactivityTimeout verifies that a receiver starved of input
// gives up after the inactivity bound instead of polling forever.
func TestBasicInactivityTimeout(t *testing.T) {
	end, _ := mesh.Pair()
	receiver := engine.NewBasic(stream.New(end, 0))

	dst := storage.NewMemStore()
	dstFile, _ := dst.Open("never", storage.Write)
	receiver.BeginReceive(dstFile, 10*time.Millisecond)

	if r := receiver.Step(); r != engine.InProgress {
		t.Fatalf("first step: got %v, want in progress", r)
	}

	time.Sleep(20 * time.Millisecond)
	if r := receiver.Step(); r != engine.Error {
		t.Fatalf("step after silence: got %v, want error", r)
	}
}

// TestBasicIdleStep verifies that stepping an unarmed engine is harmless.
func TestBasicIdleStep(t *testing.T) {
	end, _ := mesh.Pair()
	e := engine.NewBasic(stream.New(end, 0))

	if r := e.Step(); r != engine.InProgress {
		t.Fatalf("idle step: got %v, want in progress", r)
	}
}

// TestBasicAbort verifies that Abort returns the engine to idle and clears
// progress.
func TestBasicAbort(t *testing.T) {
	end, _ := mesh.Pair()
	e := engine.NewBasic(stream.New(end, 0))

	src := storage.NewMemStore()
	src.Put("f", []byte("abc"))
	f, _ := src.Open("f", storage.Read)

	e.BeginSend(f, time.Second)
	e.Step()
	e.Abort()

	if transferred, total := e.Progress(); transferred != 0 || total != 0 {
		t.Errorf("progress after abort: got %d/%d, want 0/0", transferred, total)
	}
	if r := e.Step(); r != engine.InProgress {
		t.Fatalf("step after abort: got %v, want in progress", r)
	}
}
