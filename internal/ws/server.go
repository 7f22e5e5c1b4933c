package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"auctionhouse/internal/ledger"
	"auctionhouse/internal/services/auction"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 12 * time.Second
	pingPeriod = 3 * time.Second // must be < pongWait
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
}

// ConnContext identifies one websocket session inside handlers.
type ConnContext struct {
	AuctionID string
	UserID    string
	Server    *WsServer
}

type WsServer struct {
	hub        *Hub
	subMgr     *subscriptionManager
	router     *Router
	rdc        *redis.Client
	auctionSvc auction.IAuctionService
}

func NewWsServer(h *Hub, rdc *redis.Client, auctionSvc auction.IAuctionService) *WsServer {
	srv := &WsServer{
		hub:        h,
		subMgr:     newSubscriptionManager(rdc, h),
		router:     NewRouter(),
		rdc:        rdc,
		auctionSvc: auctionSvc,
	}
	srv.registerHandlers()
	return srv
}

// Handle is the Gin entry point: it upgrades the request and joins the
// client to its auction room.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	auctionID := ginCtx.Query("auction_id")
	userID := ginCtx.Query("user_id")
	if auctionID == "" || userID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "auction_id and user_id are required"})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(512)

	wsConn := &clientConn{rawConn: rawConn}
	s.hub.Join(auctionID, wsConn)
	s.subMgr.Subscribe(auctionID) // may be a no-op (already subscribed)

	// Initial snapshot.
	if err := s.pushInitialSnapshot(ginCtx.Request.Context(), auctionID, wsConn); err != nil &&
		!errors.Is(err, ledger.ErrAuctionNotFound) {
		zap.L().Warn("ws.snapshot", zap.Error(err))
	}

	go s.reader(auctionID, userID, wsConn)
	go s.pinger(wsConn)
}

func (s *WsServer) registerHandlers() {
	Register(
		s.router,
		"auctions/bid",
		func(ctx context.Context, cc *ConnContext, req BidRequest) (BidAck, error) {
			receipt, err := s.auctionSvc.PlaceBid(ctx, cc.AuctionID, cc.UserID, req.Amount)
			if err != nil {
				return BidAck{}, err
			}
			return BidAck{BidID: receipt.BidID, NewHighest: receipt.NewHighest}, nil
		},
	)

	Register(
		s.router,
		"auctions/highest",
		func(ctx context.Context, cc *ConnContext, _ struct{}) (HighestBody, error) {
			hb, err := s.auctionSvc.CurrentHighest(ctx, cc.AuctionID)
			if err != nil {
				return HighestBody{}, err
			}
			return HighestBody{Highest: hb}, nil
		},
	)
}

func (s *WsServer) pushInitialSnapshot(ctx context.Context, id string, conn *clientConn) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	dto, err := s.auctionSvc.GetAuction(ctx, id)
	if err != nil {
		return err
	}
	return conn.writeJSON(gin.H{
		"event": "auctions/snapshot",
		"body":  dto,
	})
}

func (s *WsServer) reader(auctionID, userID string, conn *clientConn) {
	defer func() {
		s.hub.Leave(auctionID, conn)
		s.subMgr.Unsubscribe(auctionID)
	}()

	cc := &ConnContext{AuctionID: auctionID, UserID: userID, Server: s}

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			return // client closed or errored
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.writeJSON(map[string]any{
				"event": "error",
				"body":  ErrorBody{Error: "malformed_envelope"},
			})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1900*time.Millisecond)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			_ = conn.writeJSON(map[string]any{
				"event": "error",
				"body":  ErrorBody{Error: err.Error(), Code: errorCode(err)},
			})
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		reply := map[string]any{"event": env.Event + "-ack"}
		if res != nil {
			reply["body"] = res
		}
		_ = conn.writeJSON(reply)
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			_ = conn.rawConn.Close()
			return
		}
	}
}

func errorCode(err error) string {
	var rej *ledger.Rejection
	switch {
	case errors.As(err, &rej):
		if errors.Is(rej.Reason, ledger.ErrBidBelowIncrement) {
			return "bid_below_increment"
		}
		return "bid_below_current"
	case errors.Is(err, ledger.ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ledger.ErrAuctionNotFound):
		return "auction_not_found"
	}
	return ""
}
