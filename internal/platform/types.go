// Package platform implements the tagged-variant platform registry of spec
// §4.G: a uniform process_message contract over Dify, OpenAI-compatible,
// and keyword-match backends, generalizing the teacher's llm.LLM interface
// (one Generate contract, multiple concrete backends) and mcp's
// name-keyed registry pattern from MCP servers to service platforms.
package platform

import "context"

// Envelope is the input to process_message, per spec §4.G.
type Envelope struct {
	Content     string
	Sender      string
	ChatName    string
	InstanceID  string
	MType       string
	Attachments []string
}

// Reply is the output of process_message. NoReply true means the platform
// explicitly chose not to respond (spec §4.G: "or an explicit 'no reply'").
type Reply struct {
	Content     string
	AtList      []string
	Attachments []string
	NoReply     bool
}

// Platform is the uniform contract every variant implements.
type Platform interface {
	Initialize(config map[string]any) error
	ProcessMessage(ctx context.Context, env Envelope) (Reply, error)
	TestConnection(ctx context.Context) error
}

// Factory builds a new, uninitialized Platform instance for one kind.
type Factory func() Platform
