package client

// Attribute keys shared by log fields, span attributes and metric labels.
const (
	labelNID       = "nid"
	labelPID       = "pid"
	labelPTIndex   = "pt_index"
	labelOperation = "operation"
	labelStatus    = "status"
	labelKind      = "kind"
)

const (
	dispatcherSpanName = "portals-client-dispatcher"
	listenerSpanName   = "portals-listener"
)
