// Package agentloop runs the coding agent's orchestration loop.
//
// A Session sends the conversation and the tool schemas to a model gateway.
// When the model requests tools, the Dispatcher runs them one at a time in
// the order requested, and each result is fed back as a tool message threaded
// by its call id. The loop ends when the model answers without tool calls
// (complete) or when the iteration cap is reached (exhausted).
//
// # Architecture
//
//   - Tool and Registry: the uniform tool surface and the immutable
//     name-to-tool table built once per session.
//   - Dispatcher: the failure-isolation boundary. Unknown tools, invalid
//     arguments and panics all become failed ToolExecutionResults.
//   - Conversation: the ordered message log, iteration counter and
//     completion flag of one task.
//   - Session: the state machine (READY, AWAITING_MODEL, DISPATCHING_TOOLS,
//     COMPLETE, EXHAUSTED) with blocking and streaming entry points.
//   - EventEmitter: a typed event stream for the host application.
//
// # Quick Start
//
//	reg, _ := agentloop.NewRegistry(tools.Builtin(ws, cfg)...)
//	session := agentloop.NewSession(client, reg, nil)
//	defer session.Close()
//
//	outcome, err := session.Run(ctx, "Summarize notes.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(outcome.Status, outcome.Response)
package agentloop
