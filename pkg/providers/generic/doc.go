// Package generic adapts OpenAI-compatible servers such as Ollama, LM Studio,
// vLLM and Groq. It reuses the openai Chat Completions client with an
// optional API key, a configurable path and extra headers.
package generic
