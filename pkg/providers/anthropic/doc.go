// Package anthropic implements the adapter for Anthropic's Messages API.
//
// System messages are lifted into the top-level system field, tool results
// become user messages carrying tool_result blocks, and images are sent as
// url or base64 sources. The Messages API requires alternating user and
// assistant turns; requests that violate this fail with invalid_request before
// any network call.
//
// Streaming consumes the message_start, content_block_delta, message_delta and
// message_stop events. Usage arrives split across message_start (input) and
// message_delta (output).
package anthropic
