package protocol

import "strings"

// Control commands are plain-text mesh messages that start a transfer.
const (
	receivePrefix = "ZMODEM_RECEIVE:"
	sendPrefix    = "ZMODEM_SEND:"
)

// CommandKind distinguishes the two transfer directions a peer can request.
type CommandKind uint8

const (
	// CommandReceive asks this node to receive a file from the peer.
	CommandReceive CommandKind = iota + 1
	// CommandSend asks this node to send a file to the peer.
	CommandSend
)

// Command is a parsed control message.
type Command struct {
	Kind     CommandKind
	Filename string
}

// ParseCommand interprets a mesh packet payload as a control command.
// Returns false for anything that does not match the command grammar
// (including stream frames); such messages are simply not for us.
func ParseCommand(payload []byte) (Command, bool) {
	if len(payload) == 0 || payload[0] == Marker {
		return Command{}, false
	}
	msg := string(payload)
	switch {
	case strings.HasPrefix(msg, receivePrefix):
		return Command{Kind: CommandReceive, Filename: msg[len(receivePrefix):]}, true
	case strings.HasPrefix(msg, sendPrefix):
		return Command{Kind: CommandSend, Filename: msg[len(sendPrefix):]}, true
	}
	return Command{}, false
}

// FormatCommand renders a command back into its wire form. Used by the CLI
// to ask a remote bridge to start a transfer.
func FormatCommand(cmd Command) string {
	switch cmd.Kind {
	case CommandReceive:
		return receivePrefix + cmd.Filename
	case CommandSend:
		return sendPrefix + cmd.Filename
	}
	return ""
}
