package meshrtc

import (
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN — the link is meant
// for direct peer-to-peer testing with zero infrastructure cost.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection configured with Google STUN servers.
func newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated, unordered DataChannel on the
// given PeerConnection. Negotiated mode (ID 0) lets both sides create the
// channel independently without relying on OnDataChannel. Unordered mode
// makes the channel behave like the radio it stands in for — the stream
// adapter's drop-on-mismatch discipline gets exercised, not hidden.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("mesh", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
