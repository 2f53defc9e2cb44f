package bidder

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	codec "github.com/oy3o/bidstream"
	"github.com/oy3o/bidstream/budget"
	"github.com/oy3o/bidstream/bus"
	"github.com/oy3o/bidstream/entity"
	"github.com/oy3o/bidstream/storage"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func liveCampaign(id string, maxBid, total float64) *entity.Campaign {
	return &entity.Campaign{
		ID:     id,
		Name:   id,
		Status: entity.CampaignActive,
		Budget: total,
		MaxBid: maxBid,
		Schedule: &entity.Schedule{
			Start: now.Add(-time.Hour),
			End:   now.Add(time.Hour),
		},
	}
}

func usRequest(id string) *entity.BidRequest {
	return &entity.BidRequest{
		ID:          id,
		Impressions: []entity.Impression{{ID: "1", BidFloor: 0.5, BidCurrency: "USD"}},
		Device:      &entity.Device{Geo: &entity.Geo{Country: "US"}},
	}
}

type BidderTestSuite struct {
	suite.Suite
	reg       *codec.Registry
	store     *storage.Store
	campaigns *storage.Repository[entity.Campaign, *entity.Campaign]
	filters   *storage.Repository[entity.BidderFilter, *entity.BidderFilter]
	client    *bus.Client
	manager   *Manager
	mux       *http.ServeMux
	events    []*entity.EntityEvent
}

func (s *BidderTestSuite) SetupTest() {
	s.reg = codec.NewRegistry()
	entity.Register(s.reg)

	store, err := storage.Open(storage.Config{
		Path:     filepath.Join(s.T().TempDir(), "bidder.db"),
		PoolSize: 2,
		Format:   codec.FormatBinary,
	}, s.reg, nil)
	s.Require().NoError(err)
	s.store = store
	s.campaigns = storage.NewRepository[entity.Campaign](store, "campaigns")
	s.filters = storage.NewRepository[entity.BidderFilter](store, "bidder_filters")

	s.client = bus.NewClient(bus.NewMemoryTransport(), s.reg, codec.FormatJSON, nil)
	s.manager = NewManager(s.campaigns, s.filters, nil)
	s.Require().NoError(s.manager.Subscribe(s.client))

	s.events = nil
	s.Require().NoError(bus.Subscribe(s.client, TopicBidding, bus.Wildcard, func(_ context.Context, ev *entity.EntityEvent) error {
		s.events = append(s.events, ev)
		return nil
	}))

	bids := NewBidHandler(s.reg, s.manager, budget.NewManager(nil, nil, nil), 0, nil)
	bids.now = func() time.Time { return now }
	s.mux = http.NewServeMux()
	Routes(s.mux, bids, NewFilterHandler(s.reg, s.filters, s.client, 0, nil))
}

func (s *BidderTestSuite) TearDownTest() {
	s.Require().NoError(s.client.Close())
	s.Require().NoError(s.store.Close())
}

func (s *BidderTestSuite) do(method, path, contentType string, body []byte, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *BidderTestSuite) publishCampaign(id string, event entity.EventType) {
	ev := &entity.EntityEvent{EntityType: entity.EntityCampaign, EntityID: id, EventType: event}
	s.Require().NoError(bus.Publish(context.Background(), s.client, TopicBidding, RouteCampaign, ev))
}

func (s *BidderTestSuite) TestBidStatusCodes() {
	cases := []struct {
		name        string
		contentType string
		body        string
		status      int
	}{
		{"minimal", codec.ContentTypeJSON, `{"id":"abc123"}`, http.StatusNoContent},
		{"charset parameter", "application/json; charset=utf-8", `{"id":"abc123"}`, http.StatusNoContent},
		{"no content type", "", `{"id":"abc123"}`, http.StatusNoContent},
		{"empty body", codec.ContentTypeJSON, ``, http.StatusBadRequest},
		{"empty object", codec.ContentTypeJSON, `{}`, http.StatusBadRequest},
		{"malformed", codec.ContentTypeJSON, `{"id":`, http.StatusBadRequest},
		{"wrong type", codec.ContentTypeJSON, `{"id":"x","imp":"nope"}`, http.StatusBadRequest},
		{"array root", codec.ContentTypeJSON, `[1,2]`, http.StatusBadRequest},
		{"trailing object", codec.ContentTypeJSON, `{"id":"abc"} {"id":"evil"}`, http.StatusBadRequest},
		{"trailing garbage", codec.ContentTypeJSON, `{"id":"abc"} garbage`, http.StatusBadRequest},
		{"length past body", codec.ContentTypeBinary, "\x0a\x80\x80\x80\x1e", http.StatusBadRequest},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.do(http.MethodPost, "/v1/bidder", tc.contentType, []byte(tc.body))
			s.Assert().Equal(tc.status, rec.Code)
		})
	}
}

func (s *BidderTestSuite) TestBidBinaryBody() {
	body, err := codec.Marshal(s.reg, usRequest("bin-1"), codec.FormatBinary)
	s.Require().NoError(err)
	rec := s.do(http.MethodPost, "/v1/bidder", codec.ContentTypeBinary, body)
	s.Assert().Equal(http.StatusNoContent, rec.Code)
}

func (s *BidderTestSuite) TestBidBodyLimit() {
	bids := NewBidHandler(s.reg, s.manager, nil, 16, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/bidder", strings.NewReader(`{"id":"0123456789abcdef"}`))
	rec := httptest.NewRecorder()
	bids.ServeHTTP(rec, req)
	s.Assert().Equal(http.StatusRequestEntityTooLarge, rec.Code)
}

func (s *BidderTestSuite) TestMethodRouting() {
	rec := s.do(http.MethodGet, "/v1/bidder", "", nil)
	s.Assert().Equal(http.StatusMethodNotAllowed, rec.Code)
}

func (s *BidderTestSuite) TestCampaignLifecycle() {
	ctx := context.Background()
	c := liveCampaign("c1", 2, 100)
	c.Filter = &entity.BidFilter{Geo: []entity.Filter{{Property: "country", Type: entity.FilterEQ, Value: "CA"}}}
	_, err := s.campaigns.Insert(ctx, c)
	s.Require().NoError(err)

	s.publishCampaign("c1", entity.EventAdd)
	b, ok := s.manager.Bidder("c1")
	s.Require().True(ok)
	s.Assert().True(b.CanBid(usRequest("r1"), now))

	canadian := usRequest("r2")
	canadian.Device.Geo.Country = "CA"
	s.Assert().False(b.CanBid(canadian, now), "campaign filter excludes the request")
	s.Assert().False(b.CanBid(usRequest("r3"), now.Add(2*time.Hour)), "outside the schedule")

	c.Status = entity.CampaignPaused
	_, err = s.campaigns.Update(ctx, c)
	s.Require().NoError(err)
	s.publishCampaign("c1", entity.EventUpdate)
	s.Assert().Empty(s.manager.Candidates(usRequest("r4"), now))

	s.publishCampaign("c1", entity.EventDelete)
	_, ok = s.manager.Bidder("c1")
	s.Assert().False(ok)

	s.publishCampaign("ghost", entity.EventAdd)
	_, ok = s.manager.Bidder("ghost")
	s.Assert().False(ok, "campaigns missing from storage are not loaded")
}

func (s *BidderTestSuite) TestCandidatesOrderedByMaxBid() {
	ctx := context.Background()
	for _, c := range []*entity.Campaign{liveCampaign("low", 1, 10), liveCampaign("high", 3, 10), liveCampaign("mid", 2, 10)} {
		_, err := s.campaigns.Insert(ctx, c)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.manager.Load(ctx))

	var ids []string
	for _, b := range s.manager.Candidates(usRequest("r"), now) {
		ids = append(ids, b.Campaign.ID)
	}
	s.Assert().Equal([]string{"high", "mid", "low"}, ids)
	s.Assert().Len(s.manager.Bidders(), 3)
}

func (s *BidderTestSuite) bid(h http.Handler) int {
	body, err := codec.Marshal(s.reg, usRequest("r"), codec.FormatJSON)
	s.Require().NoError(err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/bidder", bytes.NewReader(body)))
	return rec.Code
}

func (s *BidderTestSuite) TestBudgetBoundsBids() {
	ledger := budget.NewMemoryLedger()
	budgets := budget.NewManager(ledger, nil, nil)
	budgets.Allocate("c1", budget.FromFloat(100))
	bids := NewBidHandler(s.reg, s.manager, budgets, 0, nil)
	bids.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := s.campaigns.Insert(ctx, liveCampaign("c1", 2, 5))
	s.Require().NoError(err)
	s.Require().NoError(s.manager.Load(ctx))

	for range 4 {
		s.Assert().Equal(http.StatusNoContent, s.bid(bids))
	}
	total, err := ledger.Total(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal(budget.FromFloat(4), total, "third bid would exceed the budget")
	s.Assert().Equal(budget.FromFloat(96), budgets.Remaining("c1"), "refused bids keep their grant")
}

func (s *BidderTestSuite) TestBudgetEventsEnableBidding() {
	ledger := budget.NewMemoryLedger()
	budgets := budget.NewManager(ledger, nil, nil)
	s.Require().NoError(bus.Subscribe(s.client, "budget", bus.Wildcard, budgets.HandleBudgetEvent))
	bids := NewBidHandler(s.reg, s.manager, budgets, 0, nil)
	bids.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := s.campaigns.Insert(ctx, liveCampaign("c1", 2, 100))
	s.Require().NoError(err)
	s.Require().NoError(s.manager.Load(ctx))

	s.Assert().Equal(http.StatusNoContent, s.bid(bids))
	total, err := ledger.Total(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Zero(total, "no grant, no bid")

	grant := &entity.BudgetEvent{EntityID: "c1", Amount: 3}
	s.Require().NoError(bus.Publish(ctx, s.client, "budget", "c1", grant))
	s.Assert().False(budgets.IsExhausted("c1"))

	s.Assert().Equal(http.StatusNoContent, s.bid(bids))
	s.Assert().Equal(http.StatusNoContent, s.bid(bids))
	total, err = ledger.Total(ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal(budget.FromFloat(2), total, "the grant covers one max bid")
	s.Assert().Equal(budget.FromFloat(1), budgets.Remaining("c1"))
}

func (s *BidderTestSuite) TestFilterAPI() {
	body := []byte(`{"id":"f1","filter":{"geo":[{"property":"country","type":0,"value":"CA"}]}}`)

	rec := s.do(http.MethodPost, "/v1/filters", codec.ContentTypeJSON, body)
	s.Require().Equal(http.StatusCreated, rec.Code)
	etag := rec.Header().Get("ETag")
	s.Assert().NotEmpty(etag)
	s.Assert().Equal(codec.ContentTypeJSON, rec.Header().Get("Content-Type"))
	s.Assert().JSONEq(string(body), rec.Body.String())

	canadian := usRequest("r")
	canadian.Device.Geo.Country = "CA"
	s.Assert().True(s.manager.Excluded(canadian), "event reloaded the filter")
	s.Assert().False(s.manager.Excluded(usRequest("r")))

	rec = s.do(http.MethodPost, "/v1/filters", codec.ContentTypeJSON, body)
	s.Assert().Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPut, "/v1/filters", codec.ContentTypeJSON, body, "If-Match", "stale")
	s.Assert().Equal(http.StatusConflict, rec.Code)

	updated := []byte(`{"id":"f1","filter":{"geo":[{"property":"country","type":0,"value":"MX"}]}}`)
	rec = s.do(http.MethodPatch, "/v1/filters", codec.ContentTypeJSON, updated, "If-Match", etag)
	s.Require().Equal(http.StatusAccepted, rec.Code)
	s.Assert().NotEqual(etag, rec.Header().Get("ETag"))
	s.Assert().False(s.manager.Excluded(canadian))

	rec = s.do(http.MethodDelete, "/v1/filters", codec.ContentTypeJSON, []byte(`{"id":"f1"}`))
	s.Assert().Equal(http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodDelete, "/v1/filters", codec.ContentTypeJSON, []byte(`{"id":"f1"}`))
	s.Assert().Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/v1/filters", codec.ContentTypeJSON, []byte(`{"name":"no id"}`))
	s.Assert().Equal(http.StatusBadRequest, rec.Code)

	var kinds []entity.EventType
	for _, ev := range s.events {
		s.Assert().Equal(entity.EntityBidFilter, ev.EntityType)
		s.Assert().Equal("f1", ev.EntityID)
		kinds = append(kinds, ev.EventType)
	}
	s.Assert().Equal([]entity.EventType{entity.EventAdd, entity.EventUpdate, entity.EventDelete}, kinds)
}

func (s *BidderTestSuite) TestInvalidFilterIsRejectedOnReload() {
	ctx := context.Background()
	c := liveCampaign("bad", 1, 10)
	c.Filter = &entity.BidFilter{User: []entity.Filter{{Property: "shoesize", Value: "9"}}}
	_, err := s.campaigns.Insert(ctx, c)
	s.Require().NoError(err)

	err = s.manager.HandleEntityEvent(ctx, &entity.EntityEvent{EntityType: entity.EntityCampaign, EntityID: "bad", EventType: entity.EventAdd})
	s.Assert().Error(err)
	_, ok := s.manager.Bidder("bad")
	s.Assert().False(ok)

	s.Require().NoError(s.manager.Load(ctx), "Load skips campaigns that do not compile")
	s.Assert().Empty(s.manager.Bidders())
}

func TestBidder(t *testing.T) {
	suite.Run(t, new(BidderTestSuite))
}

func TestNilFilterNeverExcludes(t *testing.T) {
	b, err := NewBidder(liveCampaign("c", 1, 1))
	require.NoError(t, err)
	assert.True(t, b.CanBid(usRequest("r"), now))
	assert.True(t, b.CanBid(&entity.BidRequest{ID: "bare"}, now))
}
