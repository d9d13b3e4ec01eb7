package gateway

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingMiddleware logs every blocking model call with its latency and outcome.
func LoggingMiddleware(log *logrus.Entry) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := logrus.Fields{
			"provider": req.Provider,
			"model":    req.Model,
			"messages": len(req.Messages),
			"tools":    len(req.Tools),
			"duration": time.Since(start).Round(time.Millisecond),
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("model call failed")
			return nil, err
		}
		fields["tool_calls"] = len(resp.ToolCalls)
		fields["finish"] = resp.FinishReason.Reason
		fields["output_tokens"] = resp.Usage.OutputTokens
		log.WithFields(fields).Info("model call")
		return resp, nil
	}
}

// LoggingStreamMiddleware logs when a stream opens and when it ends.
func LoggingStreamMiddleware(log *logrus.Entry) StreamMiddleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
		start := time.Now()
		entry := log.WithFields(logrus.Fields{
			"provider": req.Provider,
			"model":    req.Model,
			"messages": len(req.Messages),
		})
		in, err := next(ctx, req)
		if err != nil {
			entry.WithError(err).Warn("model stream failed to open")
			return nil, err
		}
		out := make(chan StreamEvent, cap(in))
		go func() {
			defer close(out)
			fragments := 0
			for ev := range in {
				switch ev.Type {
				case StreamTextDelta:
					fragments++
				case StreamError:
					entry.WithError(ev.Err).Warn("model stream error")
				}
				if !sendEvent(ctx, out, ev) {
					entry.WithField("fragments", fragments).Info("model stream abandoned")
					return
				}
			}
			entry.WithFields(logrus.Fields{
				"fragments": fragments,
				"duration":  time.Since(start).Round(time.Millisecond),
			}).Info("model stream")
		}()
		return out, nil
	}
}
