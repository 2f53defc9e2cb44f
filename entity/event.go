package entity

import (
	codec "github.com/oy3o/bidstream"
)

type EntityType int32

const (
	EntityUnknown EntityType = iota
	EntityCampaign
	EntityBidFilter
	EntityCreative
)

type EventType int32

const (
	EventUnknown EventType = iota
	EventAdd
	EventUpdate
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventAdd:
		return "add"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	}
	return "unknown"
}

// EntityEvent announces a change to a stored entity. Receivers reload the
// entity by id.
type EntityEvent struct {
	EntityType EntityType
	EntityID   string
	EventType  EventType
}

// BudgetEvent grants additional budget to an entity.
type BudgetEvent struct {
	EntityID string
	Amount   float64
}

var (
	EntityEventSchema = codec.NewSchema(
		codec.Enum(1, "type", func(e *EntityEvent) *EntityType { return &e.EntityType }),
		codec.String(2, "id", func(e *EntityEvent) *string { return &e.EntityID }),
		codec.Enum(3, "event", func(e *EntityEvent) *EventType { return &e.EventType }),
	)

	BudgetEventSchema = codec.NewSchema(
		codec.String(1, "id", func(e *BudgetEvent) *string { return &e.EntityID }),
		codec.Float64(2, "amount", func(e *BudgetEvent) *float64 { return &e.Amount }),
	)
)
