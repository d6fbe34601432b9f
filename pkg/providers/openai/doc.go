// Package openai implements the adapter for OpenAI's Chat Completions API.
//
// The same Client also serves OpenAI-compatible servers through the generic
// package. Usage accounting splits cached prompt tokens and reasoning tokens
// out of the inclusive counters the API reports, so each bucket can be priced
// separately.
//
// Streaming requests set stream_options.include_usage so the final chunk
// carries token counts; deltas are assembled into the stream's Response.
package openai
