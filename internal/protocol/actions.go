// Package protocol defines the JSON wire types exchanged with the remote
// agent host: outbound actions tagged by an "action" field and inbound
// events tagged by a "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Action is an outbound request to the remote agent host.
type Action interface {
	actionName() string
}

// StartAssistant launches a fresh assistant process on the host.
type StartAssistant struct {
	ProjectPath string `json:"project_path,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// ResumeSession reattaches to a prior remote session. AssistantSessionID is
// the opaque resume token issued by the assistant runtime; it may be empty
// for sessions that never received one.
type ResumeSession struct {
	SessionID          string `json:"session_id"`
	AssistantSessionID string `json:"claude_session_id,omitempty"`
}

// SendText delivers one user message to the running assistant.
type SendText struct {
	Text string `json:"text"`
}

// SendImage delivers a base64-encoded image with an accompanying prompt.
type SendImage struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

// RequestBuild asks the host to build the project's artifact.
type RequestBuild struct{}

// RequestGitPush commits and pushes the host workspace.
type RequestGitPush struct {
	Message string `json:"message"`
}

// RequestGitClone clones a repository into the host workspace.
type RequestGitClone struct {
	RepoURL     string `json:"repo_url"`
	RepoName    string `json:"repo_name"`
	AccessToken string `json:"access_token"`
}

// RequestGitInit initializes a new repository in the host workspace.
type RequestGitInit struct {
	RepoURL     string `json:"repo_url"`
	RepoName    string `json:"repo_name"`
	AccessToken string `json:"access_token"`
}

// RequestWebRTCConnect asks the host to start a WebRTC screen session.
type RequestWebRTCConnect struct{}

func (StartAssistant) actionName() string       { return "start_claude" }
func (ResumeSession) actionName() string        { return "resume_session" }
func (SendText) actionName() string             { return "send_text" }
func (SendImage) actionName() string            { return "send_image" }
func (RequestBuild) actionName() string         { return "build" }
func (RequestGitPush) actionName() string       { return "git_push" }
func (RequestGitClone) actionName() string      { return "git_clone" }
func (RequestGitInit) actionName() string       { return "git_init" }
func (RequestWebRTCConnect) actionName() string { return "webrtc_connect" }

// EncodeAction marshals an action with its "action" discriminator injected.
func EncodeAction(a Action) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s action: %w", a.actionName(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("reshaping %s action: %w", a.actionName(), err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}

	name, _ := json.Marshal(a.actionName())
	fields["action"] = name

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s action: %w", a.actionName(), err)
	}
	return data, nil
}
