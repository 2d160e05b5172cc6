package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rocketbitz/portals4-go/ptl"
)

type operationResult struct {
	length int
	err    error
}

type operation struct {
	client    *Client
	kind      OperationKind
	size      int
	target    ptl.Process
	matchBits uint64
	done      chan struct{}
	release   func()
	meta      any

	mu        sync.Mutex
	once      sync.Once
	completed bool
	result    operationResult
	callbacks []func(operationResult)
}

type getMeta struct {
	buffer []byte
	source atomic.Pointer[ptl.Process]
}

func newOperation(client *Client, kind OperationKind, size int, meta any) *operation {
	return &operation{
		client: client,
		kind:   kind,
		size:   size,
		done:   make(chan struct{}),
		meta:   meta,
	}
}

func (op *operation) complete(res operationResult) {
	op.once.Do(func() {
		op.mu.Lock()
		op.result = res
		op.completed = true
		callbacks := append([]func(operationResult){}, op.callbacks...)
		op.callbacks = nil
		op.mu.Unlock()

		if op.client != nil {
			op.client.untrack(op)
			op.client.emit(op, res)
		}

		if op.release != nil {
			op.release()
		}

		close(op.done)

		for _, cb := range callbacks {
			cb := cb
			go cb(res)
		}
	})
}

func (op *operation) resultSnapshot() operationResult {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.result
}

func (op *operation) addCallback(cb func(operationResult)) {
	if cb == nil {
		return
	}
	op.mu.Lock()
	if op.completed {
		res := op.result
		op.mu.Unlock()
		go cb(res)
		return
	}
	op.callbacks = append(op.callbacks, cb)
	op.mu.Unlock()
}

// PutFuture tracks the completion of a posted put.
type PutFuture struct {
	op *operation
}

// Await blocks until the put is acknowledged or the context is cancelled.
func (f *PutFuture) Await(ctx context.Context) error {
	if f == nil || f.op == nil {
		return errors.New("portals client: nil put future")
	}
	ctx = ensureContext(ctx)
	select {
	case <-ctx.Done():
		select {
		case <-f.op.done:
			return f.op.resultSnapshot().err
		default:
		}
		return ctx.Err()
	case <-f.op.done:
		return f.op.resultSnapshot().err
	}
}

// Done exposes a channel that closes when the put resolves.
func (f *PutFuture) Done() <-chan struct{} {
	if f == nil || f.op == nil {
		return nil
	}
	return f.op.done
}

// OnComplete registers a callback invoked asynchronously when the put resolves.
func (f *PutFuture) OnComplete(fn func(error)) {
	if f == nil || f.op == nil || fn == nil {
		return
	}
	f.op.addCallback(func(res operationResult) {
		fn(res.err)
	})
}

// GetFuture tracks the completion of a posted get.
type GetFuture struct {
	op   *operation
	buf  []byte
	meta *getMeta
}

// Await blocks until the reply lands or the context is cancelled. It
// returns the number of bytes copied into the buffer.
func (f *GetFuture) Await(ctx context.Context) (int, error) {
	if f == nil || f.op == nil {
		return 0, errors.New("portals client: nil get future")
	}
	ctx = ensureContext(ctx)
	select {
	case <-ctx.Done():
		select {
		case <-f.op.done:
			res := f.op.resultSnapshot()
			return res.length, res.err
		default:
		}
		return 0, ctx.Err()
	case <-f.op.done:
		res := f.op.resultSnapshot()
		return res.length, res.err
	}
}

// Buffer returns the caller-provided buffer passed to GetAsync.
func (f *GetFuture) Buffer() []byte {
	if f == nil {
		return nil
	}
	return f.buf
}

// Source returns the process that served the reply, once it arrived.
func (f *GetFuture) Source() ptl.Process {
	if f == nil || f.meta == nil {
		return ptl.Process{}
	}
	if p := f.meta.source.Load(); p != nil {
		return *p
	}
	return ptl.Process{}
}

// Done exposes a channel that closes when the get completes.
func (f *GetFuture) Done() <-chan struct{} {
	if f == nil || f.op == nil {
		return nil
	}
	return f.op.done
}

// OnComplete registers a callback invoked asynchronously once data arrives.
func (f *GetFuture) OnComplete(fn func(int, error)) {
	if f == nil || f.op == nil || fn == nil {
		return
	}
	f.op.addCallback(func(res operationResult) {
		fn(res.length, res.err)
	})
}
