package protocol

// CloseDescription names a WebSocket close code for log lines
func CloseDescription(code int) string {
	switch code {
	case 1000:
		return "Normal Closure"
	case 1001:
		return "Going Away"
	case 1002:
		return "Protocol Error"
	case 1003:
		return "Unsupported Data"
	case 1005:
		return "No Status Recvd"
	case 1006:
		return "Abnormal Closure"
	case 1007:
		return "Invalid UTF-8"
	case 1008:
		return "Policy Violation"
	case 1009:
		return "Message Too Big"
	case 1010:
		return "Extension Req"
	case 1011:
		return "Internal Error"
	case 1015:
		return "TLS Handshake"
	default:
		return "Unknown"
	}
}
