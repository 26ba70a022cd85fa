// internal/transport/library.go
package transport

// Library configuration names understood by transports.
const (
	LibStreamScansReturn        = "LJM_STREAM_SCANS_RETURN"
	LibStreamReceiveTimeoutMS   = "LJM_STREAM_RECEIVE_TIMEOUT_MS"
	LibSendReceiveTimeoutMS     = "LJM_SEND_RECEIVE_TIMEOUT_MS"
	LibStreamTransfersPerSecond = "LJM_STREAM_TRANSFERS_PER_SECOND"
	LibDebugLogMode             = "LJM_DEBUG_LOG_MODE"
	LibDebugLogFile             = "LJM_DEBUG_LOG_FILE"
)

// Values of LJM_STREAM_SCANS_RETURN.
const (
	// ScansReturnAll blocks until a full chunk is available or the receive
	// timeout expires.
	ScansReturnAll = 1
	// ScansReturnAllOrNone returns a full chunk or CodeNoScansReturned at once.
	ScansReturnAllOrNone = 2
)

// IndefiniteTimeout is the wire value meaning "wait forever".
const IndefiniteTimeout = 0
