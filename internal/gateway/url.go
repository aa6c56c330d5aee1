package gateway

import "strings"

const receivePath = "/v1/receive/"

// ReceiveURL derives the WebSocket receive endpoint for an account from the
// gateway's HTTP base URL: http→ws / https→wss scheme substitution, trailing
// slash stripped, then the receive path keyed by phone number.
func ReceiveURL(apiURL, phoneNumber string) string {
	var ws string
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		ws = "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		ws = "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		ws = apiURL
	}
	return strings.TrimRight(ws, "/") + receivePath + phoneNumber
}
