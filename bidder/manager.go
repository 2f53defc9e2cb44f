// Package bidder serves bid requests and keeps the set of active campaign
// bidders in sync with entity change events.
package bidder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/oy3o/bidstream/bus"
	"github.com/oy3o/bidstream/entity"
	"github.com/oy3o/bidstream/filter"
	"github.com/oy3o/bidstream/storage"
)

// Topics and routes carrying entity change events.
const (
	TopicBidding      = "bidding"
	RouteCampaign     = "campaign"
	RouteBidderFilter = "bidderFilter"
)

// Source loads stored entities. storage.Repository implements it.
type Source[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
	List(ctx context.Context) ([]*T, error)
}

// Bidder bids on behalf of one campaign.
type Bidder struct {
	Campaign *entity.Campaign
	excluded filter.Predicate
}

// NewBidder compiles the campaign's filter.
func NewBidder(c *entity.Campaign) (*Bidder, error) {
	excluded, err := filter.Compile(c.Filter)
	if err != nil {
		return nil, fmt.Errorf("bidder: campaign %s: %w", c.ID, err)
	}
	return &Bidder{Campaign: c, excluded: excluded}, nil
}

// CanBid reports whether the campaign is live at now and its filter does not
// exclude req.
func (b *Bidder) CanBid(req *entity.BidRequest, now time.Time) bool {
	return b.Campaign.IsBidding(now) && !b.excluded(req)
}

// Manager holds one Bidder per campaign and the compiled exchange-wide
// bidder filters.
type Manager struct {
	campaigns Source[entity.Campaign]
	filters   Source[entity.BidderFilter]
	log       *zap.Logger

	bidders   *xsync.Map[string, *Bidder]
	exclusion *xsync.Map[string, filter.Predicate]
}

// NewManager returns an empty manager. filters and logger may be nil.
func NewManager(campaigns Source[entity.Campaign], filters Source[entity.BidderFilter], logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		campaigns: campaigns,
		filters:   filters,
		log:       logger.Named("bidder"),
		bidders:   xsync.NewMap[string, *Bidder](),
		exclusion: xsync.NewMap[string, filter.Predicate](),
	}
}

// Subscribe binds the manager to campaign and bidder filter events.
func (m *Manager) Subscribe(c *bus.Client) error {
	if err := bus.Subscribe(c, TopicBidding, RouteCampaign, m.HandleEntityEvent); err != nil {
		return err
	}
	if m.filters == nil {
		return nil
	}
	return bus.Subscribe(c, TopicBidding, RouteBidderFilter, m.HandleEntityEvent)
}

// Load builds bidders for every stored campaign and bidder filter. Entities
// whose filters do not compile are logged and skipped.
func (m *Manager) Load(ctx context.Context) error {
	campaigns, err := m.campaigns.List(ctx)
	if err != nil {
		return fmt.Errorf("bidder: loading campaigns: %w", err)
	}
	for _, c := range campaigns {
		if err := m.putCampaign(c); err != nil {
			m.log.Warn("skipping campaign", zap.String("id", c.ID), zap.Error(err))
		}
	}
	if m.filters != nil {
		filters, err := m.filters.List(ctx)
		if err != nil {
			return fmt.Errorf("bidder: loading bidder filters: %w", err)
		}
		for _, f := range filters {
			if err := m.putFilter(f); err != nil {
				m.log.Warn("skipping bidder filter", zap.String("id", f.ID), zap.Error(err))
			}
		}
	}
	m.log.Info("bidders loaded", zap.Int("campaigns", m.bidders.Size()), zap.Int("filters", m.exclusion.Size()))
	return nil
}

// HandleEntityEvent reloads or removes the entity named by ev. A campaign
// that no longer exists in storage is removed.
func (m *Manager) HandleEntityEvent(ctx context.Context, ev *entity.EntityEvent) error {
	if ev == nil || ev.EntityID == "" {
		return nil
	}
	switch ev.EntityType {
	case entity.EntityCampaign:
		return m.syncCampaign(ctx, ev)
	case entity.EntityBidFilter:
		return m.syncFilter(ctx, ev)
	}
	return nil
}

func (m *Manager) syncCampaign(ctx context.Context, ev *entity.EntityEvent) error {
	id := ev.EntityID
	switch ev.EventType {
	case entity.EventAdd, entity.EventUpdate:
		c, err := m.campaigns.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			m.bidders.Delete(id)
			return nil
		}
		if err != nil {
			return fmt.Errorf("bidder: fetching campaign %s: %w", id, err)
		}
		if err := m.putCampaign(c); err != nil {
			m.bidders.Delete(id)
			return err
		}
		m.log.Info("added bidder for campaign", zap.String("id", id))
	case entity.EventDelete:
		m.bidders.Delete(id)
		m.log.Info("removed bidder for campaign", zap.String("id", id))
	}
	return nil
}

func (m *Manager) syncFilter(ctx context.Context, ev *entity.EntityEvent) error {
	if m.filters == nil {
		return nil
	}
	id := ev.EntityID
	switch ev.EventType {
	case entity.EventAdd, entity.EventUpdate:
		f, err := m.filters.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			m.exclusion.Delete(id)
			return nil
		}
		if err != nil {
			return fmt.Errorf("bidder: fetching bidder filter %s: %w", id, err)
		}
		if err := m.putFilter(f); err != nil {
			m.exclusion.Delete(id)
			return err
		}
		m.log.Info("updated bidder filter", zap.String("id", id))
	case entity.EventDelete:
		m.exclusion.Delete(id)
		m.log.Info("removed bidder filter", zap.String("id", id))
	}
	return nil
}

func (m *Manager) putCampaign(c *entity.Campaign) error {
	b, err := NewBidder(c)
	if err != nil {
		return err
	}
	m.bidders.Store(c.ID, b)
	return nil
}

func (m *Manager) putFilter(f *entity.BidderFilter) error {
	p, err := filter.Compile(f.Filter)
	if err != nil {
		return fmt.Errorf("bidder: bidder filter %s: %w", f.ID, err)
	}
	m.exclusion.Store(f.ID, p)
	return nil
}

// Bidder returns the bidder for a campaign id.
func (m *Manager) Bidder(id string) (*Bidder, bool) { return m.bidders.Load(id) }

// Bidders returns every bidder ordered by campaign id.
func (m *Manager) Bidders() []*Bidder {
	out := make([]*Bidder, 0, m.bidders.Size())
	m.bidders.Range(func(_ string, b *Bidder) bool {
		out = append(out, b)
		return true
	})
	slices.SortFunc(out, func(a, b *Bidder) int { return strings.Compare(a.Campaign.ID, b.Campaign.ID) })
	return out
}

// Excluded reports whether any bidder filter matches req.
func (m *Manager) Excluded(req *entity.BidRequest) bool {
	excluded := false
	m.exclusion.Range(func(_ string, p filter.Predicate) bool {
		excluded = p(req)
		return !excluded
	})
	return excluded
}

// Candidates returns the bidders that may bid on req at now, highest max bid
// first.
func (m *Manager) Candidates(req *entity.BidRequest, now time.Time) []*Bidder {
	if req == nil || m.Excluded(req) {
		return nil
	}
	var out []*Bidder
	m.bidders.Range(func(_ string, b *Bidder) bool {
		if b.CanBid(req, now) {
			out = append(out, b)
		}
		return true
	})
	slices.SortFunc(out, func(a, b *Bidder) int {
		if a.Campaign.MaxBid != b.Campaign.MaxBid {
			if a.Campaign.MaxBid > b.Campaign.MaxBid {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Campaign.ID, b.Campaign.ID)
	})
	return out
}
