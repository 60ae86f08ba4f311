// Package protocol holds the wire contract between sync clients and the
// authority: identifiers, endpoint paths and patch stream framing.
package protocol

import (
	"github.com/google/uuid"
)

// ClientID identifies a client that pushes values to the authority.
type ClientID string

// ConnectionID identifies one open pull stream.
type ConnectionID string

// GenerateClientID generates a unique client ID
func GenerateClientID() ClientID {
	return ClientID(uuid.NewString())
}

// GenerateConnectionID generates a unique connection ID
func GenerateConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Endpoint paths served by the authority.
const (
	PathClient  = "/client"
	PathPush    = "/push"
	PathPull    = "/pull"
	PathWS      = "/ws"
	PathState   = "/state"
	PathMetrics = "/metrics"
)

const (
	// CookieClientID carries the signed client identity.
	CookieClientID = "client_id"

	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
)

// ClientResponse is the body of GET /client.
type ClientResponse struct {
	ClientID ClientID `json:"client_id"`
}

// Batch is the body of POST /push: the records a client queued since
// its last flush, oldest first.
type Batch []any

// Last returns the newest record of the batch.
func (b Batch) Last() (any, bool) {
	if len(b) == 0 {
		return nil, false
	}
	return b[len(b)-1], true
}
