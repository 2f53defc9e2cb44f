package entity

import (
	codec "github.com/oy3o/bidstream"
)

// FilterType is the comparison a Filter applies. The zero value is EQ.
type FilterType int32

const (
	FilterEQ FilterType = iota
	FilterNEQ
	FilterLT
	FilterLTE
	FilterGT
	FilterGTE
	FilterIN
	FilterNOTIN
)

var filterTypeNames = [...]string{"eq", "neq", "lt", "lte", "gt", "gte", "in", "notin"}

func (t FilterType) String() string {
	if t >= 0 && int(t) < len(filterTypeNames) {
		return filterTypeNames[t]
	}
	return "unknown"
}

// Filter is one rule against a property of a bid request object. IN and
// NOTIN consider Values plus Value when it is set.
type Filter struct {
	Property string
	Type     FilterType
	Value    string
	Values   []string
}

// BidFilter groups rules by the object they inspect.
type BidFilter struct {
	Impression []Filter
	User       []Filter
	Geo        []Filter
	Site       []Filter
	Device     []Filter
}

// BidderFilter is an exchange-wide filter managed through the filter API.
type BidderFilter struct {
	Versioned

	ID     string
	Filter *BidFilter
}

func (f *BidderFilter) Key() string { return f.ID }

var (
	FilterSchema = codec.NewSchema(
		codec.String(1, "property", func(f *Filter) *string { return &f.Property }),
		codec.Enum(2, "type", func(f *Filter) *FilterType { return &f.Type }),
		codec.String(3, "value", func(f *Filter) *string { return &f.Value }),
		codec.Strings(4, "values", func(f *Filter) *[]string { return &f.Values }),
	)

	BidFilterSchema = codec.NewSchema(
		codec.Array(1, "imp", func(f *BidFilter) *[]Filter { return &f.Impression }),
		codec.Array(2, "user", func(f *BidFilter) *[]Filter { return &f.User }),
		codec.Array(3, "geo", func(f *BidFilter) *[]Filter { return &f.Geo }),
		codec.Array(4, "site", func(f *BidFilter) *[]Filter { return &f.Site }),
		codec.Array(5, "device", func(f *BidFilter) *[]Filter { return &f.Device }),
	)

	BidderFilterSchema = codec.NewSchema(
		codec.String(1, "id", func(f *BidderFilter) *string { return &f.ID }),
		codec.Object(2, "filter", func(f *BidderFilter) **BidFilter { return &f.Filter }),
	)
)
