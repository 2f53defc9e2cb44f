package entity

import (
	codec "github.com/oy3o/bidstream"
)

// DeviceType follows the OpenRTB device type list.
type DeviceType int32

const (
	DeviceInvalid DeviceType = iota
	DeviceMobileTablet
	DevicePersonalComputer
	DeviceConnectedTV
	DevicePhone
	DeviceTablet
	DeviceConnectedDevice
	DeviceSetTopBox
)

var deviceTypeNames = [...]string{"invalid", "mobile_tablet", "pc", "ctv", "phone", "tablet", "connected", "stb"}

func (d DeviceType) String() string {
	if d >= 0 && int(d) < len(deviceTypeNames) {
		return deviceTypeNames[d]
	}
	return "invalid"
}

// BidRequest is the top-level OpenRTB object received by the bid endpoint.
type BidRequest struct {
	ID                string
	Impressions       []Impression
	Site              *Site
	Device            *Device
	User              *User
	Test              bool
	AuctionType       int32
	TimeoutMillis     int32
	BlockedCategories []string
}

type Impression struct {
	ID          string
	BidFloor    float64
	BidCurrency string
	Secure      bool
}

type Site struct {
	ID         string
	Name       string
	Domain     string
	Categories []string
	Page       string
}

type Device struct {
	UserAgent string
	Geo       *Geo
	IP        string
	OS        string
	Type      DeviceType
}

type User struct {
	ID          string
	BuyerID     string
	YearOfBirth int32
	Gender      string
	Geo         *Geo
}

type Geo struct {
	Latitude  float64
	Longitude float64
	Country   string
	Region    string
	City      string
	Zip       string
}

// GeoOf returns the user's location, falling back to the device's.
func (b *BidRequest) GeoOf() *Geo {
	if b.User != nil && b.User.Geo != nil {
		return b.User.Geo
	}
	if b.Device != nil {
		return b.Device.Geo
	}
	return nil
}

// Property ids follow the OpenRTB 2.x field order.
var (
	BidRequestSchema = codec.NewSchema(
		codec.String(1, "id", func(b *BidRequest) *string { return &b.ID }),
		codec.Array(2, "imp", func(b *BidRequest) *[]Impression { return &b.Impressions }),
		codec.Object(3, "site", func(b *BidRequest) **Site { return &b.Site }),
		codec.Object(5, "device", func(b *BidRequest) **Device { return &b.Device }),
		codec.Object(6, "user", func(b *BidRequest) **User { return &b.User }),
		codec.Bool(7, "test", func(b *BidRequest) *bool { return &b.Test }),
		codec.Int32(8, "at", func(b *BidRequest) *int32 { return &b.AuctionType }),
		codec.Int32(9, "tmax", func(b *BidRequest) *int32 { return &b.TimeoutMillis }),
		codec.Strings(13, "bcat", func(b *BidRequest) *[]string { return &b.BlockedCategories }),
	)

	ImpressionSchema = codec.NewSchema(
		codec.String(1, "id", func(i *Impression) *string { return &i.ID }),
		codec.Float64(8, "bidfloor", func(i *Impression) *float64 { return &i.BidFloor }),
		codec.String(9, "bidfloorcur", func(i *Impression) *string { return &i.BidCurrency }),
		codec.Bool(12, "secure", func(i *Impression) *bool { return &i.Secure }),
	)

	SiteSchema = codec.NewSchema(
		codec.String(1, "id", func(s *Site) *string { return &s.ID }),
		codec.String(2, "name", func(s *Site) *string { return &s.Name }),
		codec.String(3, "domain", func(s *Site) *string { return &s.Domain }),
		codec.Strings(4, "cat", func(s *Site) *[]string { return &s.Categories }),
		codec.String(7, "page", func(s *Site) *string { return &s.Page }),
	)

	DeviceSchema = codec.NewSchema(
		codec.String(2, "ua", func(d *Device) *string { return &d.UserAgent }),
		codec.Object(4, "geo", func(d *Device) **Geo { return &d.Geo }),
		codec.String(7, "ip", func(d *Device) *string { return &d.IP }),
		codec.String(13, "os", func(d *Device) *string { return &d.OS }),
		codec.Enum(18, "devicetype", func(d *Device) *DeviceType { return &d.Type }),
	)

	UserSchema = codec.NewSchema(
		codec.String(1, "id", func(u *User) *string { return &u.ID }),
		codec.String(2, "buyeruid", func(u *User) *string { return &u.BuyerID }),
		codec.Int32(3, "yob", func(u *User) *int32 { return &u.YearOfBirth }),
		codec.String(4, "gender", func(u *User) *string { return &u.Gender }),
		codec.Object(8, "geo", func(u *User) **Geo { return &u.Geo }),
	)

	GeoSchema = codec.NewSchema(
		codec.Float64(2, "lat", func(g *Geo) *float64 { return &g.Latitude }),
		codec.Float64(3, "lon", func(g *Geo) *float64 { return &g.Longitude }),
		codec.String(4, "country", func(g *Geo) *string { return &g.Country }),
		codec.String(5, "region", func(g *Geo) *string { return &g.Region }),
		codec.String(7, "city", func(g *Geo) *string { return &g.City }),
		codec.String(8, "zip", func(g *Geo) *string { return &g.Zip }),
	)
)
