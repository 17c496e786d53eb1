package tracing

// Span attribute keys.
const (
	AttrCommandID   = "command.id"
	AttrCommandType = "command.type"
	AttrCommand     = "command.value"
	AttrBridgeID    = "bridge.id"
	AttrEngineStep  = "engine.step"
)

// Span names.
const (
	SpanPrefixDispatch = "bridge.dispatch."
	SpanHandshake      = "bridge.handshake"
)

// InstrumentationName names the tracer used across neovis.
const InstrumentationName = "github.com/zjrosen/neovis"
