package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auctions/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// BidRequest is the body for "auctions/bid".
type BidRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

// BidAck confirms an admitted bid.
type BidAck struct {
	BidID      string  `json:"bid_id"`
	NewHighest float64 `json:"new_highest"`
}

// HighestBody answers "auctions/highest".
type HighestBody struct {
	Highest float64 `json:"highest"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
