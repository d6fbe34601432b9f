// Package providers defines the provider adapter capability shared by every
// model backend the gateway can dispatch to.
//
// # Overview
//
// An Adapter normalizes one vendor API into Request and Response values. The
// router treats every adapter the same way; vendor differences live only in
// the subpackages:
//
//   - openai: Chat Completions API
//   - anthropic: Messages API
//   - generic: OpenAI-compatible endpoints (Ollama, vLLM, Groq, LM Studio)
//   - stub: deterministic offline adapter for development and tests
//
// # Errors
//
// Every adapter failure is an *Error carrying a Kind:
//
//	timeout          per-call deadline exceeded        retryable
//	rate_limited     HTTP 429                          retryable
//	server_error     HTTP 5xx or transport failure     retryable
//	auth             HTTP 401/403                      not retryable
//	invalid_request  other HTTP 4xx                    not retryable
//
// Caller cancellation is returned as context.Canceled and never wrapped, so
// callers can tell it apart from provider failures.
//
// # Retries
//
// HTTPClient retries retryable kinds up to the provider's max_retries with
// exponential backoff. Streams are retried only until response headers
// arrive.
//
// # Registry
//
// A Registry maps type names to constructors. The gateway builds one at
// startup and creates adapters from configuration in declaration order:
//
//	reg := providers.NewRegistry()
//	reg.Register("openai", openai.New)
//	adapter, err := reg.Build(providers.ProviderConfig{
//	    Name:    "openai",
//	    Type:    "openai",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Timeout: 60 * time.Second,
//	})
package providers
