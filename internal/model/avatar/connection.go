package avatar

// ConnectionStatus 描述与对话后端的连接状态。
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
)

var allowedTransitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionDisconnected: {ConnectionConnecting, ConnectionError},
	ConnectionConnecting:   {ConnectionConnected, ConnectionError, ConnectionDisconnected},
	ConnectionConnected:    {ConnectionDisconnected, ConnectionError},
	ConnectionError:        {ConnectionConnecting, ConnectionDisconnected, ConnectionConnected},
}

// Valid reports whether s is one of the four statuses.
func (s ConnectionStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal edge.
// Self-transitions are always allowed.
func (s ConnectionStatus) CanTransition(next ConnectionStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
