// Package auth checks the optional access token on WebSocket upgrades.
//
// When security.websocket_secret is set, a client must present an HS256
// JWT signed with that secret, either as the "token" query parameter or
// as an "Authorization: Bearer" header. Tokens are minted with
// GenerateToken (fcserver -token NAME prints one).
//
// Plain OPC TCP clients and static HTTP documents are never authenticated.
package auth
