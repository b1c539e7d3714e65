package model

import "strings"

// Credentials is the active broker API credential set. Only the external auth
// flow mutates it; every process here reads it once at startup and restarts
// to pick up changes.
type Credentials struct {
	AppID       string
	SecretKey   string
	AccessToken string
	IsActive    bool
}

// SocketToken returns the websocket auth token. The sockets require the
// "app_id:access_token" form; tokens stored bare are prefixed, tokens already
// containing a colon pass through verbatim.
func (c Credentials) SocketToken() string {
	if strings.Contains(c.AccessToken, ":") {
		return c.AccessToken
	}
	return c.AppID + ":" + c.AccessToken
}
