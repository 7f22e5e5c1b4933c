package auctionhandler

import "time"

type CreateAuctionBody struct {
	SellerID   string    `json:"seller_id"   binding:"required"      example:"seller123"`
	Title      string    `json:"title"       binding:"required"      example:"Antique clock"`
	StartPrice float64   `json:"start_price" binding:"required,gt=0" example:"1000"`
	EndsAt     time.Time `json:"ends_at"     binding:"required"      example:"2026-08-27T16:05:05Z"`
} // @name CreateAuctionRequest

type PlaceBidBody struct {
	BidderID string  `json:"bidder_id" binding:"required"      example:"user123"`
	Amount   float64 `json:"amount"    binding:"required,gt=0" example:"1500"`
} // @name PlaceBidRequest

// ErrorResponse carries a machine-readable code so clients can tell
// "someone just outbid you" apart from "auction already ended". For
// amount rejections Current/Minimum tell the bidder what to beat.
type ErrorResponse struct {
	Error   string  `json:"error"`
	Code    string  `json:"code,omitempty"    example:"bid_below_current"`
	Current float64 `json:"current,omitempty" example:"1500"`
	Minimum float64 `json:"minimum,omitempty" example:"2000"`
} // @name ErrorResponse

type HighestResponse struct {
	AuctionID string  `json:"auction_id"`
	Highest   float64 `json:"highest"`
} // @name HighestResponse

type ListAuctionsQuery struct {
	Status string `form:"status"  binding:"omitempty,oneof=OPEN CLOSED"`
	Limit  int    `form:"limit,default=10"  binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0"  binding:"gte=0"`
} // @name ListAuctionsQuery
