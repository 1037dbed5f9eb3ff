// Package tfllm defines the request/response types for tfllm IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line:
// the client writes one Request, the daemon writes one Response, and the
// connection is closed.
package tfllm

// Actions understood by the daemon. Each CLI command maps to exactly one.
const (
	// ActionPing is a trivial liveness probe; it never touches the model.
	ActionPing = "ping"
	// ActionAsk answers a free-form CLI question.
	ActionAsk = "ask"
	// ActionFix suggests a corrected command line for a failed command.
	ActionFix = "fix"
)

// Request is sent from the CLI client to the daemon.
type Request struct {
	// Action selects the workflow: "ping", "ask" or "fix".
	Action string `json:"action"`
	// Query is the user's question (ask only).
	Query string `json:"query,omitempty"`
	// Command is the failed command line (fix only).
	Command string `json:"command,omitempty"`
	// ExitCode is the failed command's exit status (fix only).
	ExitCode int `json:"exit_code,omitempty"`
	// Stdout is the failed command's captured stdout (fix only).
	Stdout string `json:"stdout,omitempty"`
	// Stderr is the failed command's captured stderr, or a recent
	// terminal-output excerpt when no stderr was captured (fix only).
	Stderr string `json:"stderr,omitempty"`
}

// Response is sent from the daemon back to the client.
type Response struct {
	// Success reports whether the request was served. When false, Error
	// carries the reason and Result is meaningless.
	Success bool `json:"success"`
	// Result is the generated text. An empty result on a successful fix
	// means the model found no suggestion.
	Result string `json:"result"`
	// Error is a human-readable failure description, empty on success.
	Error string `json:"error,omitempty"`
}
