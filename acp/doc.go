// Package acp implements Agent Client Protocol support for Parley, so code
// editors like Zed can drive the agent over newline-delimited JSON-RPC on
// stdio.
//
// Supported methods:
// - initialize: returns protocol version and agent capabilities
// - session/new: creates an in-process session
// - session/load: re-attaches to a session created earlier in this process
// - session/prompt: runs one turn of the orchestration loop
//
// While a prompt runs, the server streams session/update notifications with
// agent_message_chunk, tool_call and tool_result updates.
package acp
