package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketbitz/portals4-go/ptl"
)

func (c *Client) dispatch(ctx context.Context) {
	defer c.wg.Done()

	span := c.startDispatcherSpan()
	startFields := []logField{
		logKV(labelNID, c.self.NID),
		logKV(labelPID, c.self.PID),
		logKV(labelPTIndex, c.pt),
	}
	c.logDispatcherEvent("start", startFields...)
	spanAddEvent(span, "start", startFields...)
	c.metricDispatcherStarted(startFields...)

	defer func() {
		err := c.dispatcherError()
		status := "ok"
		fields := []logField{logKV("status", status)}
		if err != nil {
			status = "error"
			fields[0] = logKV("status", status)
			fields = append(fields, logKV("error", err))
			spanRecordError(span, err)
		}
		c.logDispatcherEvent("stop", fields...)
		spanAddEvent(span, "stop", fields...)
		c.metricDispatcherStopped(fields...)
		c.finishDispatcherSpan(span, err)
	}()

	queues := []ptl.Handle{c.eq}
	for {
		ev, _, err := c.rt.EQPollContext(ctx, queues, ptl.TimeForever)
		switch {
		case err == nil:
			c.handleEvent(ev, span)
		case errors.Is(err, ptl.ErrEQDropped):
			// The event is valid; earlier ones were lost.
			c.recordDispatcherFailure(span, "eq_dropped", err)
			c.handleEvent(ev, span)
		case errors.Is(err, context.Canceled):
			return
		default:
			dispatchErr := fmt.Errorf("eq poll: %w", err)
			c.recordDispatcherFailure(span, "eq_poll_error", dispatchErr)
			c.recordDispatcherError(dispatchErr)
			return
		}
	}
}

func (c *Client) handleEvent(ev ptl.Event, span Span) {
	switch owner := ev.UserPtr.(type) {
	case *operation:
		c.handleCompletion(owner, ev, span)
	case *Exposure:
		c.handleTargetEvent(owner, ev, span)
	default:
		fields := []logField{logKV("type", ev.Type), logKV("fail", ev.NIFailType)}
		c.logDispatcherEvent("event", fields...)
		spanAddEvent(span, "event", fields...)
	}
}

func (c *Client) handleCompletion(op *operation, ev ptl.Event, span Span) {
	result := operationResult{length: int(ev.MLength)}
	if ev.NIFailType != ptl.NIOK {
		result.err = OperationError{
			Kind:      op.kind,
			Fail:      ev.NIFailType,
			Target:    op.target,
			MatchBits: op.matchBits,
			Length:    ev.MLength,
		}
	}
	if op.kind == OperationGet {
		if meta, ok := op.meta.(*getMeta); ok && meta != nil {
			source := ev.Initiator
			meta.source.Store(&source)
			if result.err == nil {
				result.length = copy(meta.buffer, ev.Start[:ev.MLength])
			}
		}
	}
	c.logOperationCompletion(op, result, ev, span)
	op.complete(result)
}

func (c *Client) handleTargetEvent(exp *Exposure, ev ptl.Event, span Span) {
	fields := []logField{
		logKV("type", ev.Type),
		logKV("initiator_nid", ev.Initiator.NID),
		logKV("initiator_pid", ev.Initiator.PID),
		logKV("match_bits", fmt.Sprintf("0x%x", ev.MatchBits)),
		logKV("exposure_bits", fmt.Sprintf("0x%x", exp.matchBits)),
		logKV("length", ev.MLength),
	}
	if ev.NIFailType != ptl.NIOK {
		fields = append(fields, logKV("fail", ev.NIFailType))
		c.logDispatcherEvent("target_error", fields...)
		spanAddEvent(span, "target_error", fields...)
		return
	}
	switch ev.Type {
	case ptl.EventPut:
		c.stats.putsReceived.Add(1)
		c.logDispatcherEvent("put_received", fields...)
		spanAddEvent(span, "put_received", fields...)
		c.metricMessageReceived(logKV(labelOperation, OperationPut.String()))
		c.emitPut(PutMessage{
			Payload:      ev.Start[:ev.MLength],
			Initiator:    ev.Initiator,
			MatchBits:    ev.MatchBits,
			HdrData:      ev.HdrData,
			RemoteOffset: ev.RemoteOffset,
		})
	case ptl.EventGet:
		c.stats.getsServed.Add(1)
		c.logDispatcherEvent("get_served", fields...)
		spanAddEvent(span, "get_served", fields...)
	default:
		c.logDispatcherEvent("target_event", fields...)
	}
}

// emitPut hands every registered handler its own copy of the payload.
func (c *Client) emitPut(msg PutMessage) {
	c.handlersMu.RLock()
	handlers := make([]PutHandler, 0, len(c.putHandlers))
	for _, h := range c.putHandlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()
	for _, handler := range handlers {
		h := handler
		m := msg
		m.Payload = append([]byte(nil), msg.Payload...)
		go h(m)
	}
}

func (c *Client) emit(op *operation, res operationResult) {
	if c == nil {
		return
	}
	switch op.kind {
	case OperationPut:
		if res.err != nil {
			c.stats.putErrored.Add(1)
			c.logf("client: put errored: %v", res.err)
			return
		}
		c.stats.putCompleted.Add(1)
		c.logf("client: put completed size=%d", res.length)
	case OperationGet:
		if res.err != nil {
			c.stats.getErrored.Add(1)
			c.logf("client: get errored: %v", res.err)
			return
		}
		c.stats.getCompleted.Add(1)
		c.logf("client: get completed size=%d", res.length)
	}
}

func (c *Client) recordDispatcherError(err error) {
	if err == nil {
		return
	}
	c.dispatcherErr.CompareAndSwap(nil, &errorHolder{err: err})
}

func (c *Client) dispatcherError() error {
	if c == nil {
		return nil
	}
	if holder := c.dispatcherErr.Load(); holder != nil {
		return holder.err
	}
	return nil
}

func (c *Client) startDispatcherSpan() Span {
	if c == nil || c.tracer == nil {
		return nil
	}
	return c.tracer.StartSpan(dispatcherSpanName, c.identity().traceAttrs("portals-client")...)
}

func (c *Client) finishDispatcherSpan(span Span, err error) {
	if span == nil {
		return
	}
	span.End(err)
}

func (c *Client) recordDispatcherFailure(span Span, event string, err error) {
	if err == nil {
		return
	}
	fields := []logField{logKV("error", err)}
	c.logDispatcherEvent(event, fields...)
	spanAddEvent(span, event, fields...)
	spanRecordError(span, err)
	c.metricDispatcherEQError(event, err, fields...)
}

func (c *Client) logOperationCompletion(op *operation, res operationResult, ev ptl.Event, span Span) {
	if c == nil || op == nil {
		return
	}
	status := "ok"
	if res.err != nil {
		status = "error"
	}
	eventName := "completion"
	if status != "ok" {
		eventName = "completion_error"
	}
	fields := []logField{
		logKV(labelOperation, op.kind.String()),
		logKV(labelStatus, status),
	}
	if op.size > 0 {
		fields = append(fields, logKV("requested_size", op.size))
	}
	if res.length > 0 {
		fields = append(fields, logKV("length", res.length))
	}
	fields = append(fields,
		logKV("target_nid", op.target.NID),
		logKV("target_pid", op.target.PID),
		logKV("event_type", ev.Type),
	)
	if res.err != nil {
		fields = append(fields, logKV("fail", ev.NIFailType), logKV("error", res.err))
	}
	c.logDispatcherEvent(eventName, fields...)
	spanAddEvent(span, eventName, fields...)
	if res.err != nil {
		spanRecordError(span, res.err)
	}

	metricFields := []logField{logKV(labelOperation, op.kind.String()), logKV(labelStatus, status)}
	switch op.kind {
	case OperationPut:
		if res.err != nil {
			c.metricPutFailed(res.err, metricFields...)
		} else {
			c.metricPutCompleted(metricFields...)
		}
	case OperationGet:
		if res.err != nil {
			c.metricGetFailed(res.err, metricFields...)
		} else {
			c.metricGetCompleted(metricFields...)
		}
	}
}

func spanAddEvent(span Span, name string, fields ...logField) {
	if span == nil {
		return
	}
	span.AddEvent(name, attributesFromFields(fields...)...)
}

func spanRecordError(span Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}

func attributesFromFields(fields ...logField) []TraceAttribute {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]TraceAttribute, 0, len(fields))
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs = append(attrs, TraceAttribute{Key: field.key, Value: field.value})
	}
	return attrs
}
