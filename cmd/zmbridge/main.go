// Zmbridge — CLI entry point.
//
// This tool runs the stream bridge daemon: it attaches to a mesh link (a
// TCP-connected radio, a WebRTC peer link, or an in-process loopback pair),
// listens for transfer commands from peers, and moves files through the
// packet-framed byte stream.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-config, -link, -radio, -dir, ...).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/meshfiles/zmbridge/internal/bridge"
	"github.com/meshfiles/zmbridge/internal/config"
	"github.com/meshfiles/zmbridge/internal/mesh"
	"github.com/meshfiles/zmbridge/internal/mesh/meshrtc"
	"github.com/meshfiles/zmbridge/internal/protocol"
	"github.com/meshfiles/zmbridge/internal/storage"
	"github.com/meshfiles/zmbridge/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.String("config", "", "Path to a YAML config file")
	linkType := flag.String("link", "", "Link type: tcp, webrtc or loopback")
	radioAddr := flag.String("radio", "", "host:port of the attached radio (tcp link)")
	dir := flag.String("dir", "", "Directory holding transferred files")
	sigListen := flag.Bool("sigListen", false, "Listen for the signaling WebSocket (webrtc link)")
	sigAddr := flag.String("sigAddr", "", "Signaling bind address (webrtc link, listener)")
	sigURL := flag.String("sigUrl", "", "Signaling WebSocket URL to connect to (webrtc link, dialer)")
	request := flag.String("request", "", "One-shot mode: ask the remote bridge to 'send' or 'receive' -file, then exit")
	file := flag.String("file", "", "Filename for -request")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	// Flags override the file.
	if *linkType != "" {
		cfg.Link.Type = *linkType
	}
	if *radioAddr != "" {
		cfg.Link.RadioAddr = *radioAddr
	}
	if *dir != "" {
		cfg.Store.Dir = *dir
	}
	if *sigListen {
		cfg.Link.Signaling.Listen = true
	}
	if *sigAddr != "" {
		cfg.Link.Signaling.Addr = *sigAddr
	}
	if *sigURL != "" {
		cfg.Link.Signaling.URL = *sigURL
	}

	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Zmbridge — v%s", version))
	pterm.Println()

	// No flags and no config file → interactive mode.
	if *configPath == "" && flag.NFlag() == 0 {
		askLink(cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if *request != "" {
		runRequest(ctx, cfg, *request, *file)
		return
	}

	if cfg.Link.Type == config.LinkLoopback {
		runLoopback(ctx, cfg)
		return
	}

	runBridge(ctx, cfg)
	util.LogInfo("bridge shut down")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runBridge attaches to the configured mesh link and serves transfers until
// the context is cancelled.
func runBridge(ctx context.Context, cfg *config.Config) {
	link, err := openLink(ctx, cfg)
	if err != nil {
		util.LogError("failed to open mesh link: %v", err)
		os.Exit(1)
	}
	defer link.Close()

	store, err := storage.NewDirStore(cfg.Store.Dir)
	if err != nil {
		util.LogError("failed to open file store: %v", err)
		os.Exit(1)
	}

	util.StartStatsReporter(ctx)
	util.LogSuccess("mesh link up — serving files from %s", cfg.Store.Dir)

	br := bridge.New(link, store, nil, bridgeOptions(cfg))
	if err := br.Run(ctx); err != nil && ctx.Err() == nil {
		util.LogError("bridge stopped: %v", err)
		os.Exit(1)
	}
}

// runLoopback wires two bridges back to back over an in-memory pair and
// lets the operator push files between them. Useful for demos and for
// exercising the transfer path without a radio.
func runLoopback(ctx context.Context, cfg *config.Config) {
	endA, endB := mesh.Pair()
	defer endA.Close()
	defer endB.Close()

	storeA, err := storage.NewDirStore(cfg.Store.Dir)
	if err != nil {
		util.LogError("failed to open file store: %v", err)
		os.Exit(1)
	}
	storeB, err := storage.NewDirStore(cfg.Store.Dir + ".peer")
	if err != nil {
		util.LogError("failed to open peer file store: %v", err)
		os.Exit(1)
	}

	opts := bridgeOptions(cfg)
	go bridge.New(endA, storeA, nil, opts).Run(ctx)
	go bridge.New(endB, storeB, nil, opts).Run(ctx)

	util.StartStatsReporter(ctx)
	util.LogSuccess("loopback pair up — %s ⇄ %s.peer", cfg.Store.Dir, cfg.Store.Dir)

	for ctx.Err() == nil {
		name, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("File to push (empty to quit)").
			Show()

		name = strings.TrimSpace(name)
		if name == "" {
			return
		}

		// One side is told to send, the other to receive, the way a mesh
		// controller would command two remote nodes.
		endA.Inject([]byte(protocol.FormatCommand(protocol.Command{Kind: protocol.CommandSend, Filename: name})))
		endB.Inject([]byte(protocol.FormatCommand(protocol.Command{Kind: protocol.CommandReceive, Filename: name})))

		// Give the transfer a moment before prompting again so the log
		// output stays readable.
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
		}
	}
}

// runRequest sends a single transfer command to the remote bridge and
// waits for its advisory reply. The remote's SEND is our receive and vice
// versa, so a local bridge should be running on the same mesh to carry the
// other half of the transfer.
func runRequest(ctx context.Context, cfg *config.Config, direction, name string) {
	var kind protocol.CommandKind
	switch direction {
	case "send":
		kind = protocol.CommandSend
	case "receive":
		kind = protocol.CommandReceive
	default:
		util.LogError("invalid -request: must be 'send' or 'receive'")
		os.Exit(1)
	}
	if name == "" {
		util.LogError("missing -file for -request")
		os.Exit(1)
	}

	link, err := openLink(ctx, cfg)
	if err != nil {
		util.LogError("failed to open mesh link: %v", err)
		os.Exit(1)
	}
	defer link.Close()

	cmd := protocol.FormatCommand(protocol.Command{Kind: kind, Filename: name})
	if err := link.Send([]byte(cmd)); err != nil {
		util.LogError("failed to send command: %v", err)
		os.Exit(1)
	}
	util.LogInfo("sent %q, waiting for reply", cmd)

	deadline := time.After(30 * time.Second)
	for {
		if pkt, ok := link.Receive(); ok {
			if _, err := protocol.Decode(pkt.Payload); err == nil {
				continue // stream frame for the local bridge, not for us
			}
			util.LogInfo("peer replied: %s", pkt.Payload)
			return
		}

		select {
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			util.LogWarning("no reply within 30s — the command may still have been acted on")
			return
		case <-ctx.Done():
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// loadConfig reads the config file when given, otherwise starts from the
// built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openLink builds the mesh attachment selected by the configuration.
func openLink(ctx context.Context, cfg *config.Config) (mesh.Link, error) {
	switch cfg.Link.Type {
	case config.LinkTCP:
		return mesh.DialTCP(ctx, cfg.Link.RadioAddr)

	case config.LinkWebRTC:
		if cfg.Link.Signaling.Listen {
			return meshrtc.Listen(ctx, cfg.Link.Signaling.Addr)
		}
		wsURL, err := normalizeWSURL(cfg.Link.Signaling.URL)
		if err != nil {
			return nil, err
		}
		return meshrtc.Dial(ctx, wsURL)

	default:
		return nil, fmt.Errorf("unsupported link type %q", cfg.Link.Type)
	}
}

// bridgeOptions maps the configuration onto bridge options.
func bridgeOptions(cfg *config.Config) bridge.Options {
	return bridge.Options{
		MaxPacketSize:    cfg.Transfer.MaxPacketSize,
		EngineTimeout:    cfg.EngineTimeout(),
		MaxRetries:       cfg.Transfer.MaxRetries,
		ProgressInterval: cfg.ProgressInterval(),
		TickInterval:     cfg.TickInterval(),
	}
}

// normalizeWSURL validates and normalizes a raw WebSocket URL string.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// askLink prompts for the link setup when no flags were given.
func askLink(cfg *config.Config) {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Loopback — Two local bridges, no radio",
			"Radio    — Attach to a TCP-connected radio",
			"WebRTC   — Peer link over a DataChannel",
		}).
		WithDefaultText("Select the mesh link").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(choice, "Radio"):
		cfg.Link.Type = config.LinkTCP
		cfg.Link.RadioAddr = askText("Radio address (host:port)")

	case strings.HasPrefix(choice, "WebRTC"):
		cfg.Link.Type = config.LinkWebRTC
		side, _ := pterm.DefaultInteractiveSelect.
			WithOptions([]string{"Listen — Wait for the peer", "Dial   — Connect to a listening peer"}).
			WithDefaultText("Signaling side").
			Show()
		pterm.Println()
		if strings.HasPrefix(side, "Listen") {
			cfg.Link.Signaling.Listen = true
			cfg.Link.Signaling.Addr = askText("Signaling bind address (e.g. :8080)")
		} else {
			cfg.Link.Signaling.URL = askText("Signaling URL (e.g. ws://peer:8080/ws)")
		}

	default:
		cfg.Link.Type = config.LinkLoopback
	}
}

// askText prompts until a non-empty value is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}

		util.LogWarning("a value is required")
		pterm.Println()
	}
}
