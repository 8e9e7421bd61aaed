package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, attached to the context logger and propagated down the call chain.
const (
	FieldRequestID  = "request_id"
	FieldJobID      = "job_id"
	FieldComponent  = "component"
	FieldUploaderID = "uploader_id"
	FieldFileName   = "file_name"
	FieldShop       = "shop"
	FieldRow        = "row"
)

// Metric fields, used by the Entry API for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
