// Package bridge is the orchestrator tying everything together: it watches
// the mesh for control commands, opens files, arms the stepping engine, and
// advances it one step per tick. All timing lives outside the core — Tick
// is a plain synchronous function, driven by Run's ticker in production and
// called directly in tests.
package bridge

import (
	"context"
	"time"

	"github.com/meshfiles/zmbridge/internal/engine"
	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/protocol"
	"github.com/meshfiles/zmbridge/internal/session"
	"github.com/meshfiles/zmbridge/internal/storage"
	"github.com/meshfiles/zmbridge/internal/stream"
	"github.com/meshfiles/zmbridge/internal/util"
)

// Options tunes a Bridge. Zero values fall back to the defaults below.
type Options struct {
	MaxPacketSize    int           // largest mesh packet to emit
	EngineTimeout    time.Duration // stepping-engine inactivity bound
	MaxRetries       int           // engine restarts before giving up
	ProgressInterval time.Duration // 0 disables periodic progress logs
	TickInterval     time.Duration // delay between Run's ticks
}

// Default tuning, sized for a slow LoRa mesh.
const (
	DefaultEngineTimeout    = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultProgressInterval = 5 * time.Second
	DefaultTickInterval     = 100 * time.Millisecond
)

func (o *Options) applyDefaults() {
	if o.MaxPacketSize <= 0 {
		o.MaxPacketSize = protocol.DefaultMaxPacketSize
	}
	if o.EngineTimeout <= 0 {
		o.EngineTimeout = DefaultEngineTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
}

// EngineFactory builds the stepping engine on top of the bridge's stream
// adapter. Nil selects the built-in engine.
type EngineFactory func(engine.Stream) engine.Engine

// Bridge binds one mesh link, one file store, one stream adapter and one
// stepping engine. Everything runs on the tick goroutine — no locking, and
// no two transfers in flight at once.
type Bridge struct {
	link  mesh.Link // raw link, used for text replies
	demux *demux
	strm  *stream.Stream
	eng   engine.Engine
	store storage.Store
	sess  *session.Session
	opts  Options

	lastProgress time.Time
}

// New creates a Bridge on link, serving files from store.
func New(link mesh.Link, store storage.Store, newEngine EngineFactory, opts Options) *Bridge {
	opts.applyDefaults()

	d := newDemux(link)
	strm := stream.New(d.frameLink(), opts.MaxPacketSize)

	if newEngine == nil {
		newEngine = func(s engine.Stream) engine.Engine { return engine.NewBasic(s) }
	}

	return &Bridge{
		link:  link,
		demux: d,
		strm:  strm,
		eng:   newEngine(strm),
		store: store,
		sess:  session.New(),
		opts:  opts,
	}
}

// Session exposes the transfer session, mainly for tests and status
// display.
func (b *Bridge) Session() *session.Session { return b.sess }

// Run drives Tick off a ticker until ctx is cancelled. An active transfer
// is aborted on shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Tick()
		case <-ctx.Done():
			if b.sess.Active() {
				util.LogWarning("shutting down with %s transfer of %s in flight, aborting", b.sess.State(), b.sess.Filename())
				b.eng.Abort()
				b.sess.Reset()
			}
			return ctx.Err()
		}
	}
}

// Tick advances the bridge by one step: poll for a control command, then
// step the active engine. Never blocks.
func (b *Bridge) Tick() {
	if pkt, ok := b.demux.pollCommand(); ok {
		if cmd, ok := protocol.ParseCommand(pkt.Payload); ok {
			b.handleCommand(cmd, pkt.From)
		}
		// Anything else is unrecognized mesh chatter — ignored.
	}

	if b.sess.Active() {
		b.stepEngine()
	}
}

// ---------------------------------------------------------------------------
// Control commands
// ---------------------------------------------------------------------------

func (b *Bridge) handleCommand(cmd protocol.Command, from string) {
	if b.sess.Active() {
		util.LogWarning("ignoring %s command for %s: %s transfer of %s already in progress",
			kindName(cmd.Kind), cmd.Filename, b.sess.State(), b.sess.Filename())
		b.reply(from, "Error: transfer already in progress ("+b.sess.State().String()+")")
		return
	}

	switch cmd.Kind {
	case protocol.CommandReceive:
		file, err := b.store.Open(cmd.Filename, storage.Write)
		if err != nil {
			util.LogError("failed to open %s for writing: %v", cmd.Filename, err)
			b.reply(from, "Error: cannot open "+cmd.Filename)
			return
		}
		b.sess.Begin(session.Receiving, cmd.Filename, file, from)
		b.eng.BeginReceive(file, b.opts.EngineTimeout)
		util.LogInfo("receiving %s", cmd.Filename)
		b.reply(from, "OK: receiving "+cmd.Filename)

	case protocol.CommandSend:
		file, err := b.store.Open(cmd.Filename, storage.Read)
		if err != nil {
			util.LogError("failed to open %s for reading: %v", cmd.Filename, err)
			b.reply(from, "Error: cannot open "+cmd.Filename)
			return
		}
		b.sess.Begin(session.Sending, cmd.Filename, file, from)
		b.eng.BeginSend(file, b.opts.EngineTimeout)
		util.LogInfo("sending %s (%d bytes)", cmd.Filename, file.Size())
		b.reply(from, "OK: sending "+cmd.Filename)
	}
}

func kindName(k protocol.CommandKind) string {
	if k == protocol.CommandSend {
		return "SEND"
	}
	return "RECEIVE"
}

// reply sends an advisory text message back over the mesh. Best-effort:
// the peer learns nothing authoritative from it, and a transfer never
// depends on it arriving.
func (b *Bridge) reply(to, msg string) {
	if err := b.link.Send([]byte(msg)); err != nil {
		util.LogDebug("reply to %s not sent: %v", to, err)
	}
}

// ---------------------------------------------------------------------------
// Engine stepping
// ---------------------------------------------------------------------------

func (b *Bridge) stepEngine() {
	switch b.eng.Step() {
	case engine.Complete:
		transferred, _ := b.eng.Progress()
		util.LogSuccess("%s of %s complete: %d bytes in %v",
			verb(b.sess.State()), b.sess.Filename(), transferred, b.sess.Elapsed().Round(time.Millisecond))
		b.sess.Reset()

	case engine.Error:
		attempt := b.sess.Retry()
		if attempt <= b.opts.MaxRetries {
			util.LogWarning("%s of %s failed, retrying (attempt %d/%d)",
				verb(b.sess.State()), b.sess.Filename(), attempt, b.opts.MaxRetries)
			b.rearm()
			return
		}
		util.LogError("%s of %s failed after %d retries, giving up",
			verb(b.sess.State()), b.sess.Filename(), b.opts.MaxRetries)
		b.reply(b.sess.Peer(), "Error: transfer failed for "+b.sess.Filename())
		b.sess.Reset()

	case engine.InProgress:
		b.maybeReportProgress()
	}
}

// rearm restarts the engine on the same file handle. For a receive this
// rarely salvages anything, the peer has long moved on, but it costs
// nothing and occasionally rescues a send.
func (b *Bridge) rearm() {
	switch b.sess.State() {
	case session.Receiving:
		b.eng.BeginReceive(b.sess.File(), b.opts.EngineTimeout)
	case session.Sending:
		b.eng.BeginSend(b.sess.File(), b.opts.EngineTimeout)
	}
}

func (b *Bridge) maybeReportProgress() {
	if b.opts.ProgressInterval <= 0 || time.Since(b.lastProgress) < b.opts.ProgressInterval {
		return
	}
	b.lastProgress = time.Now()

	transferred, total := b.eng.Progress()
	if total > 0 {
		util.LogInfo("%s %s: %d/%d bytes (%.0f%%)",
			verb(b.sess.State()), b.sess.Filename(), transferred, total,
			float64(transferred)/float64(total)*100)
	} else {
		util.LogInfo("%s %s: %d bytes", verb(b.sess.State()), b.sess.Filename(), transferred)
	}
}

func verb(s session.State) string {
	if s == session.Sending {
		return "send"
	}
	return "receive"
}
