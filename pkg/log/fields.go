package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches internal/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldIdentity = "identity"

	// Service
	FieldService = "service"

	// Studio
	FieldSessionID = "session_id"
	FieldRoomID    = "room_id"
	FieldJobID     = "job_id"
)
