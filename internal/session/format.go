package session

import "livecode/internal/protocol"

const (
	statusPrefix = "[status] "
	errorPrefix  = "[error] "

	// TerminalMarker is appended exactly once when a session's connection
	// closes.
	TerminalMarker = "[done] execution finished\n"
)

func statusLine(data string) string { return statusPrefix + data + "\n" }

func errorLine(data string) string { return errorPrefix + data + "\n" }

// formatMessage renders a stream message for the output log. Output
// fragments pass through untouched.
func formatMessage(msg *protocol.StreamMessage) string {
	switch msg.Kind {
	case protocol.KindStatus:
		return statusLine(msg.Data)
	case protocol.KindError:
		return errorLine(msg.Data)
	default:
		return msg.Data
	}
}
