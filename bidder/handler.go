package bidder

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	codec "github.com/oy3o/bidstream"
	"github.com/oy3o/bidstream/budget"
	"github.com/oy3o/bidstream/bus"
	"github.com/oy3o/bidstream/entity"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// Reserver charges a bid against a campaign's granted budget and its
// ledger ceiling. budget.Manager implements it.
type Reserver interface {
	IsExhausted(id string) bool
	TrySpend(id string, amount budget.Amount) bool
	Allocate(id string, amount budget.Amount) budget.Amount
	Reserve(ctx context.Context, id string, amount, ceiling budget.Amount) (*entity.LedgerEntry, error)
}

// BidHandler serves POST /v1/bidder. A request that cannot be decoded, or
// decodes to nothing, is answered with 400. Everything else is answered
// with 204.
type BidHandler struct {
	reg     *codec.Registry
	manager *Manager
	budget  Reserver
	maxBody int64
	log     *zap.Logger
	now     func() time.Time
}

// NewBidHandler returns a handler evaluating requests against manager's
// bidders. reserver and logger may be nil.
func NewBidHandler(reg *codec.Registry, manager *Manager, reserver Reserver, maxBody int64, logger *zap.Logger) *BidHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BidHandler{
		reg:     reg,
		manager: manager,
		budget:  reserver,
		maxBody: maxBody,
		log:     logger.Named("bid"),
		now:     time.Now,
	}
}

func (h *BidHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := codec.FormatForContentType(r.Header.Get("Content-Type"))
	req, err := codec.Decode[entity.BidRequest](h.reg, codec.LimitReader(r.Body, h.maxBody), format)
	switch {
	case errors.Is(err, codec.ErrTooLarge):
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		h.log.Debug("rejecting undecodable bid request", zap.Stringer("format", format), zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	case req == nil:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	winner := h.selectBidder(r.Context(), req)
	if winner != nil {
		h.log.Info("bid request", zap.String("request", req.ID), zap.String("campaign", winner.Campaign.ID))
	} else {
		h.log.Debug("bid request", zap.String("request", req.ID))
	}
	w.WriteHeader(http.StatusNoContent)
}

// selectBidder returns the first candidate whose granted budget and ledger
// ceiling both cover its max bid.
func (h *BidHandler) selectBidder(ctx context.Context, req *entity.BidRequest) *Bidder {
	if h.manager == nil {
		return nil
	}
	for _, b := range h.manager.Candidates(req, h.now()) {
		if h.budget == nil {
			return b
		}
		c := b.Campaign
		if h.budget.IsExhausted(c.ID) {
			continue
		}
		bid := budget.FromFloat(c.MaxBid)
		if !h.budget.TrySpend(c.ID, bid) {
			continue
		}
		_, err := h.budget.Reserve(ctx, c.ID, bid, budget.FromFloat(c.Budget))
		if err == nil {
			return b
		}
		// the ledger refused, so the grant is returned
		h.budget.Allocate(c.ID, bid)
		if !errors.Is(err, budget.ErrExhausted) {
			h.log.Warn("budget reservation failed", zap.String("campaign", c.ID), zap.Error(err))
		}
	}
	return nil
}

// FilterRepository stores bidder filters. storage.Repository implements it.
type FilterRepository interface {
	Insert(ctx context.Context, f *entity.BidderFilter) (bool, error)
	Update(ctx context.Context, f *entity.BidderFilter) (bool, error)
	Delete(ctx context.Context, f *entity.BidderFilter) (bool, error)
}

// FilterHandler manages bidder filters:
//
//	POST          201 Created, 409 when the id exists
//	PUT, PATCH    202 Accepted, 409 when the id or If-Match version is stale
//	DELETE        204 No Content, 404 when nothing matched
//
// Every successful change is announced on the bidding topic.
type FilterHandler struct {
	reg     *codec.Registry
	repo    FilterRepository
	client  *bus.Client
	maxBody int64
	log     *zap.Logger
}

// NewFilterHandler returns a filter API handler. client and logger may be nil.
func NewFilterHandler(reg *codec.Registry, repo FilterRepository, client *bus.Client, maxBody int64, logger *zap.Logger) *FilterHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterHandler{
		reg:     reg,
		repo:    repo,
		client:  client,
		maxBody: maxBody,
		log:     logger.Named("filters"),
	}
}

func (h *FilterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := codec.FormatForContentType(r.Header.Get("Content-Type"))
	f, err := codec.Decode[entity.BidderFilter](h.reg, codec.LimitReader(r.Body, h.maxBody), format)
	switch {
	case errors.Is(err, codec.ErrTooLarge):
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	case err != nil || f == nil || f.ID == "":
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.ETag = r.Header.Get("If-Match")

	ctx := r.Context()
	var (
		ok      bool
		event   entity.EventType
		success int
		failure int
	)
	switch r.Method {
	case http.MethodPost:
		f.ETag = ""
		ok, err = h.repo.Insert(ctx, f)
		event, success, failure = entity.EventAdd, http.StatusCreated, http.StatusConflict
	case http.MethodPut, http.MethodPatch:
		ok, err = h.repo.Update(ctx, f)
		event, success, failure = entity.EventUpdate, http.StatusAccepted, http.StatusConflict
	case http.MethodDelete:
		ok, err = h.repo.Delete(ctx, f)
		event, success, failure = entity.EventDelete, http.StatusNoContent, http.StatusNotFound
	default:
		w.Header().Set("Allow", "POST, PUT, PATCH, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		h.log.Error("bidder filter storage failed", zap.String("id", f.ID), zap.String("method", r.Method), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(failure)
		return
	}

	h.notify(ctx, f.ID, event)

	if success == http.StatusNoContent {
		w.WriteHeader(success)
		return
	}
	body, err := codec.Marshal(h.reg, f, format)
	if err != nil {
		h.log.Error("encoding bidder filter", zap.String("id", f.ID), zap.Error(err))
		w.WriteHeader(success)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("ETag", f.ETag)
	w.WriteHeader(success)
	_, _ = w.Write(body)
}

// notify publishes the change. Failures are logged; the change is already
// stored.
func (h *FilterHandler) notify(ctx context.Context, id string, event entity.EventType) {
	if h.client == nil {
		return
	}
	ev := &entity.EntityEvent{EntityType: entity.EntityBidFilter, EntityID: id, EventType: event}
	if err := bus.Publish(ctx, h.client, TopicBidding, RouteBidderFilter, ev); err != nil {
		h.log.Warn("entity event not published", zap.String("id", id), zap.Stringer("event", event), zap.Error(err))
	}
}

// Routes registers the bidder endpoints on mux.
func Routes(mux *http.ServeMux, bids *BidHandler, filters *FilterHandler) {
	mux.Handle("POST /v1/bidder", bids)
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		mux.Handle(method+" /v1/filters", filters)
	}
}
