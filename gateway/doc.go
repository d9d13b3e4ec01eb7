// Package gateway is the model gateway used by the agent loop. It presents a
// provider-agnostic Gateway with two calls: Chat, which returns a whole answer
// and any tool calls, and ChatStream, which returns text fragments over a
// channel.
//
// # Architecture
//
//   - Provider adapters: OpenAIAdapter speaks Chat Completions with native
//     tool calling; GollmAdapter wraps github.com/teilomillet/gollm for the
//     remaining providers.
//   - Client: routes requests to adapters and runs middleware (retry,
//     logging) around every call.
//   - Catalog: known models, their providers and context windows.
//
// # Quick Start
//
//	adapter, _ := gateway.NewOpenAIAdapter(gateway.OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")})
//	client := gateway.NewClient(
//	    gateway.WithProvider("openai", adapter),
//	    gateway.WithDefaultModel("gpt-4o-mini"),
//	    gateway.WithMiddleware(gateway.RetryMiddleware(gateway.DefaultRetryPolicy())),
//	)
//
//	resp, _ := client.Chat(ctx, []gateway.Message{gateway.UserMessage("Hello")}, nil)
//	fmt.Println(resp.Content)
//
// # Errors
//
// Every adapter maps failures onto the same hierarchy (AuthenticationError,
// RateLimitError, ServerError, NetworkError, ...). IsRetryable tells the retry
// middleware which of them are worth another attempt.
package gateway
