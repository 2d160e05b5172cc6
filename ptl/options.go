package ptl

import (
	"os"

	"go.uber.org/zap"
)

// Option adjusts runtime initialization.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	fabric       *Fabric
	nid          uint32
	uid          *uint32
	memOps       MemOps
	logger       *zap.Logger
	backlogWarn  int
	defaultLimit *Limits
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		backlogWarn: 1024,
	}
}

func (c *runtimeConfig) resolve() {
	if c.fabric == nil {
		c.fabric = NewFabric()
	}
	if c.nid == NIDAny {
		c.nid = c.fabric.allocNID()
	}
	if c.uid == nil {
		uid := uint32(os.Getuid())
		c.uid = &uid
	}
	if c.memOps == nil {
		c.memOps = HeapMemOps{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
}

// WithFabric attaches the runtime to a shared in-process fabric. Runtimes can
// only reach peers on the same fabric. Without this option the runtime gets a
// private fabric.
func WithFabric(f *Fabric) Option {
	return func(cfg *runtimeConfig) {
		cfg.fabric = f
	}
}

// WithNID fixes the node identifier. The fabric assigns one when unset.
func WithNID(nid uint32) Option {
	return func(cfg *runtimeConfig) {
		cfg.nid = nid
	}
}

// WithUID overrides the user identifier stamped on outgoing messages. It
// defaults to the process uid.
func WithUID(uid uint32) Option {
	return func(cfg *runtimeConfig) {
		cfg.uid = &uid
	}
}

// WithMemOps installs the allocator and pinning strategy used for internal
// buffers and bound memory.
func WithMemOps(ops MemOps) Option {
	return func(cfg *runtimeConfig) {
		cfg.memOps = ops
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *runtimeConfig) {
		cfg.logger = logger
	}
}

// WithDispatchBacklogWarning logs a warning whenever more than n released
// triggered operations are waiting for the dispatcher. Zero disables it.
func WithDispatchBacklogWarning(n int) Option {
	return func(cfg *runtimeConfig) {
		cfg.backlogWarn = n
	}
}

// WithDefaultLimits replaces the limits granted to NIInit callers that pass
// no desired limits.
func WithDefaultLimits(l Limits) Option {
	return func(cfg *runtimeConfig) {
		cfg.defaultLimit = &l
	}
}
