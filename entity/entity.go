// Package entity holds the domain objects exchanged between the bidder, the
// message bus and storage, together with their codec schemas.
package entity

import (
	codec "github.com/oy3o/bidstream"
)

// Versioned carries the storage version tag. It is attached by storage and
// is never part of the encoded form.
type Versioned struct {
	ETag string
}

func (v *Versioned) GetETag() string     { return v.ETag }
func (v *Versioned) SetETag(etag string) { v.ETag = etag }

// Register installs every entity serializer in reg. It is safe to call more
// than once.
func Register(reg *codec.Registry) {
	codec.Register[BidRequest](reg, BidRequestSchema)
	codec.Register[Impression](reg, ImpressionSchema)
	codec.Register[Site](reg, SiteSchema)
	codec.Register[Device](reg, DeviceSchema)
	codec.Register[User](reg, UserSchema)
	codec.Register[Geo](reg, GeoSchema)

	codec.Register[Campaign](reg, CampaignSchema)
	codec.Register[Schedule](reg, ScheduleSchema)
	codec.Register[LedgerEntry](reg, LedgerEntrySchema)

	codec.Register[Filter](reg, FilterSchema)
	codec.Register[BidFilter](reg, BidFilterSchema)
	codec.Register[BidderFilter](reg, BidderFilterSchema)

	codec.Register[EntityEvent](reg, EntityEventSchema)
	codec.Register[BudgetEvent](reg, BudgetEventSchema)
}
