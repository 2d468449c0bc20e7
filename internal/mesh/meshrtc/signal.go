package meshrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/meshfiles/zmbridge/internal/util"
)

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON structure exchanged over the WebSocket during
// signaling.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Listen starts a WebSocket signaling server on addr, waits for exactly one
// peer to connect, performs the SDP/ICE exchange (sending the offer), and
// returns the established Link. The WebSocket closes once the DataChannel
// is open; all further traffic is peer to peer.
func Listen(ctx context.Context, addr string) (*Link, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start signaling server: %w", err)
	}
	defer listener.Close()

	connCh := make(chan *websocket.Conn, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Only accept the first peer.
		select {
		case connCh <- conn:
		default:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
			conn.Close()
		}
	})
	go func() {
		_ = http.Serve(listener, mux)
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	util.LogInfo("signaling server listening on port %d, waiting for peer", port)

	var wsConn *websocket.Conn
	select {
	case wsConn = <-connCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer wsConn.Close()
	util.LogInfo("peer connected, starting WebRTC exchange")

	return establish(ctx, wsConn, true)
}

// Dial connects to a signaling server at url (ws:// or wss://, path /ws),
// performs the SDP/ICE exchange (answering), and returns the established
// Link.
func Dial(ctx context.Context, url string) (*Link, error) {
	wsConn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	defer wsConn.Close()
	util.LogInfo("connected to signaling server at %s", url)

	return establish(ctx, wsConn, false)
}

// establish runs the SDP/ICE exchange over an open WebSocket. The offerer
// side creates and sends the offer; the other side answers. Returns once
// the DataChannel is open.
func establish(ctx context.Context, wsConn *websocket.Conn, offerer bool) (*Link, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create DataChannel: %w", err)
	}

	link := newLink(ctx, pc, dc)

	// All WebSocket writes are serialized behind one mutex.
	var wsMu sync.Mutex
	send := func(msg message) error {
		wsMu.Lock()
		defer wsMu.Unlock()
		return wsConn.WriteJSON(msg)
	}

	// Trickle ICE candidates as they are gathered.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		if err := send(message{Type: msgTypeCandidate, Candidate: string(data)}); err != nil {
			util.LogDebug("failed to send ICE candidate: %v", err)
		}
	})

	// Read loop: remote SDP and candidates.
	errCh := make(chan error, 1)
	go func() {
		for {
			var msg message
			if err := wsConn.ReadJSON(&msg); err != nil {
				errCh <- err
				return
			}

			switch msg.Type {
			case msgTypeOffer:
				if err := pc.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
				}); err != nil {
					errCh <- err
					return
				}
				answer, err := pc.CreateAnswer(nil)
				if err != nil {
					errCh <- err
					return
				}
				if err := pc.SetLocalDescription(answer); err != nil {
					errCh <- err
					return
				}
				if err := send(message{Type: msgTypeAnswer, SDP: answer.SDP}); err != nil {
					errCh <- err
					return
				}

			case msgTypeAnswer:
				if err := pc.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
				}); err != nil {
					errCh <- err
					return
				}

			case msgTypeCandidate:
				var init webrtc.ICECandidateInit
				if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
					util.LogDebug("bad ICE candidate: %v", err)
					continue
				}
				if err := pc.AddICECandidate(init); err != nil {
					util.LogDebug("failed to add ICE candidate: %v", err)
				}
			}
		}
	}()

	if offerer {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			link.Close()
			return nil, fmt.Errorf("failed to create offer: %w", err)
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			link.Close()
			return nil, fmt.Errorf("failed to set local description: %w", err)
		}
		if err := send(message{Type: msgTypeOffer, SDP: offer.SDP}); err != nil {
			link.Close()
			return nil, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	select {
	case <-link.Ready():
		util.LogInfo("WebRTC mesh link established, closing signaling socket")
		return link, nil

	case err := <-errCh:
		// The peer may close the WebSocket right after the channel opens.
		select {
		case <-link.Ready():
			return link, nil
		default:
			link.Close()
			return nil, fmt.Errorf("signaling failed: %w", err)
		}

	case <-ctx.Done():
		link.Close()
		return nil, ctx.Err()
	}
}
