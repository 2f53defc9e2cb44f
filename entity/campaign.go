package entity

import (
	"time"

	codec "github.com/oy3o/bidstream"
)

type CampaignStatus int32

const (
	CampaignUnknown CampaignStatus = iota
	CampaignActive
	CampaignPaused
	CampaignArchived
)

// Campaign is a stored unit of bidding: a budget, a bid price, a schedule and
// a filter excluding the requests it must not bid on.
type Campaign struct {
	Versioned

	ID          string
	Name        string
	Status      CampaignStatus
	Budget      float64
	MaxBid      float64
	Spend       float64
	LandingPage string
	Schedule    *Schedule
	Filter      *BidFilter
	Updated     time.Time
}

func (c *Campaign) Key() string { return c.ID }

// Schedule is a half-open [Start, End) window. A zero bound is unbounded.
type Schedule struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (s *Schedule) Contains(t time.Time) bool {
	if s == nil {
		return true
	}
	if !s.Start.IsZero() && t.Before(s.Start) {
		return false
	}
	return s.End.IsZero() || t.Before(s.End)
}

// IsBidding reports whether the campaign may bid at t.
func (c *Campaign) IsBidding(t time.Time) bool {
	return c.Status == CampaignActive && c.Schedule.Contains(t)
}

var (
	CampaignSchema = codec.NewSchema(
		codec.String(1, "id", func(c *Campaign) *string { return &c.ID }),
		codec.String(2, "name", func(c *Campaign) *string { return &c.Name }),
		codec.Enum(3, "status", func(c *Campaign) *CampaignStatus { return &c.Status }),
		codec.Float64(4, "budget", func(c *Campaign) *float64 { return &c.Budget }),
		codec.Float64(5, "maxbid", func(c *Campaign) *float64 { return &c.MaxBid }),
		codec.Float64(6, "spend", func(c *Campaign) *float64 { return &c.Spend }),
		codec.String(7, "landing", func(c *Campaign) *string { return &c.LandingPage }),
		codec.Object(8, "schedule", func(c *Campaign) **Schedule { return &c.Schedule }),
		codec.Object(9, "filters", func(c *Campaign) **BidFilter { return &c.Filter }),
		codec.Time(10, "updated", func(c *Campaign) *time.Time { return &c.Updated }),
	)

	ScheduleSchema = codec.NewSchema(
		codec.Time(1, "start", func(s *Schedule) *time.Time { return &s.Start }),
		codec.Time(2, "end", func(s *Schedule) *time.Time { return &s.End }),
	)
)
