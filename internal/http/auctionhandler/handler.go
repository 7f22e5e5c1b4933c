package auctionhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"auctionhouse/internal/ledger"
	"auctionhouse/internal/services/auction"
)

type Handler struct {
	svc auction.IAuctionService
}

func New(svc auction.IAuctionService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/auctions", h.create)
	r.GET("/auctions", h.list)
	r.GET("/auctions/:id", h.info)
	r.GET("/auctions/:id/bids", h.bids)
	r.GET("/auctions/:id/highest", h.highest)
	r.POST("/auctions/:id/stop", h.stop)
	r.POST("/auctions/:id/bid", h.bid)
}

// mapError turns service errors into a status plus a coded body.
func mapError(err error) (int, ErrorResponse) {
	var rej *ledger.Rejection
	if errors.As(err, &rej) {
		code := "bid_below_current"
		if errors.Is(rej.Reason, ledger.ErrBidBelowIncrement) {
			code = "bid_below_increment"
		}
		return http.StatusConflict, ErrorResponse{
			Error:   rej.Reason.Error(),
			Code:    code,
			Current: rej.Current,
			Minimum: rej.Minimum,
		}
	}
	switch {
	case errors.Is(err, ledger.ErrAuctionNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "auction_not_found"}
	case errors.Is(err, ledger.ErrAuctionClosed):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "auction_closed"}
	case errors.Is(err, auction.ErrInvalidBid), errors.Is(err, auction.ErrInvalidAuction):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "storage_error"}
}

// @Summary		Create an auction
// @Description	Seller lists an item; bidding opens immediately and closes at ends_at.
// @Tags			Auctions
// @Param			body	body		CreateAuctionBody	true	"Auction payload"
// @Success		201		{object}	auction.AuctionDTO
// @Failure		400		{object}	ErrorResponse
// @Router			/auctions [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}

	dto, err := h.svc.CreateAuction(ginCtx.Request.Context(), auction.CreateAuctionParams{
		SellerID:   body.SellerID,
		Title:      body.Title,
		StartPrice: body.StartPrice,
		EndsAt:     body.EndsAt.UTC(),
	})
	if err != nil {
		status, resp := mapError(err)
		ginCtx.JSON(status, resp)
		return
	}
	ginCtx.JSON(http.StatusCreated, dto)
}

// @Summary		Get auction details
// @Description	Returns full information about a single auction.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	auction.AuctionDTO
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id} [get]
func (h *Handler) info(c *gin.Context) {
	dto, err := h.svc.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, resp := mapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// @Summary		List auctions
// @Description	Retrieves a paginated list of auctions, optionally filtered by status.
// @Tags			Auctions
// @Param			status	query		string	false	"Status filter"			Enums(OPEN,CLOSED)
// @Param			limit	query		int		false	"Max results (0-100)"	minimum(0)	maximum(100)	default(10)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		auction.AuctionDTO
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/auctions [get]
func (h *Handler) list(c *gin.Context) {
	var q ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}
	out, err := h.svc.ListAuctions(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		status, resp := mapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		List bids
// @Description	All admitted bids for an auction, highest amount first.
// @Tags			Bids
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{array}		auction.BidDTO
// @Failure		500	{object}	ErrorResponse
// @Router			/auctions/{id}/bids [get]
func (h *Handler) bids(c *gin.Context) {
	out, err := h.svc.ListBids(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, resp := mapError(err)
		c.JSON(status, resp)
		return
	}
	if out == nil {
		out = []auction.BidDTO{}
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Current highest bid
// @Description	The amount a new bid has to beat; the start price while no bids exist.
// @Tags			Bids
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	HighestResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id}/highest [get]
func (h *Handler) highest(c *gin.Context) {
	id := c.Param("id")
	hb, err := h.svc.CurrentHighest(c.Request.Context(), id)
	if err != nil {
		status, resp := mapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, HighestResponse{AuctionID: id, Highest: hb})
}

// @Summary		Stop an auction
// @Description	Seller (or admin) closes an auction early; winner selection runs as usual.
// @Tags			Auctions
// @Param			id	path	string	true	"Auction ID"
// @Success		202
// @Failure		409	{object}	ErrorResponse
// @Router			/auctions/{id}/stop [post]
func (h *Handler) stop(ginCtx *gin.Context) {
	if err := h.svc.StopAuction(ginCtx.Request.Context(), ginCtx.Param("id")); err != nil {
		status, resp := mapError(err)
		ginCtx.JSON(status, resp)
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

// @Summary		Place a bid
// @Description	Admits the bid if it beats the current high bid by the minimum increment.
// @Tags			Bids
// @Param			id		path		string			true	"Auction ID"
// @Param			body	body		PlaceBidBody	true	"Bid payload"
// @Success		201		{object}	auction.BidReceipt
// @Failure		400		{object}	ErrorResponse
// @Failure		404		{object}	ErrorResponse
// @Failure		409		{object}	ErrorResponse
// @Router			/auctions/{id}/bid [post]
func (h *Handler) bid(ginCtx *gin.Context) {
	var body PlaceBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}

	receipt, err := h.svc.PlaceBid(ginCtx.Request.Context(),
		ginCtx.Param("id"),
		body.BidderID,
		body.Amount,
	)
	if err != nil {
		status, resp := mapError(err)
		ginCtx.JSON(status, resp)
		return
	}
	ginCtx.JSON(http.StatusCreated, receipt)
}
