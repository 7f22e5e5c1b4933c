package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClosingStream is where downstream notification workers pick closing
// events up. Stream entries survive consumer restarts.
const ClosingStream = "auction_closings"

// RedisEmitter appends every closing event to a stream and mirrors it on
// the auction's pub/sub channel so live websocket rooms see the close.
type RedisEmitter struct {
	rdc *redis.Client
}

var _ Emitter = (*RedisEmitter)(nil)

func NewRedisEmitter(rdc *redis.Client) *RedisEmitter {
	return &RedisEmitter{rdc: rdc}
}

func (e *RedisEmitter) EmitClose(ctx context.Context, ev ClosingEvent) error {
	values := map[string]any{
		"aid":       ev.AuctionID,
		"title":     ev.Title,
		"seller":    ev.SellerID,
		"closed_at": ev.ClosedAt.Unix(),
	}
	if ev.Winner != nil {
		values["winner_bid"] = ev.Winner.BidID
		values["winner"] = ev.Winner.BidderID
		values["amount"] = ev.Winner.Amount
	}
	if err := e.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: ClosingStream,
		Values: values,
	}).Err(); err != nil {
		return err
	}

	// Live fan-out is best effort; the stream entry above is the durable
	// record.
	payload, err := json.Marshal(struct {
		Event string `json:"event"`
		ClosingEvent
	}{Event: "closed", ClosingEvent: ev})
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = e.rdc.Publish(pubCtx, "auc:"+ev.AuctionID+":events", payload).Err()
	return nil
}
