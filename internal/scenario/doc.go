// Package scenario loads YAML descriptions of Portals programs and runs them
// against in-process runtimes sharing one fabric.
//
// A scenario declares processes and a list of steps. Each step calls one
// engine operation on behalf of a process; the runner records the return
// code of every step and every event drained from an event queue, producing
// a transcript that is stable across runs.
package scenario
