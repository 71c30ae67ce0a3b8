package protocol

import (
	"encoding/json"
	"strings"
)

// Event is an inbound frame from the remote agent host, decoded once at the
// channel boundary and consumed exactly once by the coordinator.
type Event interface {
	eventType() string
}

// Connected is the server's first frame on a fresh connection. SessionID is
// the server-assigned remote session identifier, re-issued on every connect.
type Connected struct {
	SessionID string `json:"session_id"`
}

// SystemNotice carries a server-side status message. A notice containing the
// turn-completion sentinel also ends the current assistant turn.
type SystemNotice struct {
	Message string `json:"message"`
}

// AssistantDelta is one increment of streamed assistant output.
type AssistantDelta struct {
	Text string `json:"text"`
}

// ToolUse reports a tool invocation by the assistant.
type ToolUse struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

// BuildStatus reports build progress. When Status is "ready" the artifact
// fields identify a downloadable build product.
type BuildStatus struct {
	Status       string `json:"status"`
	ArtifactPath string `json:"apk_url"`
	ArtifactSize int64  `json:"apk_size"`
}

// Ready reports whether this status carries a finished artifact.
func (b BuildStatus) Ready() bool { return b.Status == "ready" }

// BuildLog is one line of build output.
type BuildLog struct {
	Text string `json:"text"`
}

// GitStatus reports the outcome of a git action on the host.
type GitStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorNotice reports a server-side failure. It also ends the current turn.
type ErrorNotice struct {
	Message string `json:"message"`
}

// ResumeTokenIssued delivers the assistant runtime's opaque resume token for
// the active session.
type ResumeTokenIssued struct {
	Token string `json:"claude_session_id"`
}

// ProjectPath announces the host-side workspace path.
type ProjectPath struct {
	Path string `json:"path"`
}

func (Connected) eventType() string         { return "connected" }
func (SystemNotice) eventType() string      { return "system" }
func (AssistantDelta) eventType() string    { return "claude_output" }
func (ToolUse) eventType() string           { return "tool_use" }
func (BuildStatus) eventType() string       { return "build" }
func (BuildLog) eventType() string          { return "build_log" }
func (GitStatus) eventType() string         { return "git" }
func (ErrorNotice) eventType() string       { return "error" }
func (ResumeTokenIssued) eventType() string { return "session_id" }
func (ProjectPath) eventType() string       { return "project_path" }

// completionSentinel is the substring inside a system message that the
// server uses to signal end-of-turn. There is no dedicated terminal event
// type on the wire; see IsTurnComplete.
const completionSentinel = "complete"

// IsTurnComplete reports whether a system message marks the end of the
// current assistant turn. Exact substring match, preserved for server
// compatibility.
func IsTurnComplete(message string) bool {
	return strings.Contains(message, completionSentinel)
}

// DecodeEvent decodes one inbound frame. The second return is false for
// frames that must not reach consumers: malformed JSON, unknown types, and
// the ping / input_sent heartbeat echoes. Unknown types are dropped rather
// than surfaced so new server-side events never break older clients.
func DecodeEvent(data []byte) (Event, bool) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, false
	}

	var ev Event
	switch head.Type {
	case "connected":
		ev = decode[Connected](data)
	case "system":
		ev = decode[SystemNotice](data)
	case "claude_output":
		ev = decode[AssistantDelta](data)
	case "tool_use":
		ev = decode[ToolUse](data)
	case "build":
		ev = decode[BuildStatus](data)
	case "build_log":
		ev = decode[BuildLog](data)
	case "git":
		ev = decode[GitStatus](data)
	case "error":
		ev = decode[ErrorNotice](data)
	case "session_id":
		ev = decode[ResumeTokenIssued](data)
	case "project_path":
		ev = decode[ProjectPath](data)
	default:
		// Includes ping, input_sent, and anything the server adds later.
		return nil, false
	}

	if ev == nil {
		return nil, false
	}
	return ev, true
}

func decode[T Event](data []byte) Event {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}
