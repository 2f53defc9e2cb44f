// Package filter compiles entity.BidFilter rules into predicates over bid
// requests. Property names are resolved once against fixed accessor tables,
// so evaluation does no lookups and no reflection.
package filter

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/oy3o/bidstream/entity"
)

var (
	ErrUnknownProperty = errors.New("filter: unknown property")
	ErrInvalidValue    = errors.New("filter: invalid value")
	ErrUnknownOperator = errors.New("filter: unknown operator")
)

// Predicate reports whether a request matches.
type Predicate func(req *entity.BidRequest) bool

// Never matches nothing. It is the compiled form of a nil filter.
func Never(*entity.BidRequest) bool { return false }

type kind uint8

const (
	kindString kind = iota
	kindNumber
	kindList
)

// accessor reads one property of T. Exactly one of the functions is set,
// according to kind.
type accessor[T any] struct {
	kind kind
	str  func(*T) string
	num  func(*T) float64
	list func(*T) []string
}

func str[T any](f func(*T) string) accessor[T] { return accessor[T]{kind: kindString, str: f} }
func num[T any](f func(*T) float64) accessor[T] { return accessor[T]{kind: kindNumber, num: f} }
func list[T any](f func(*T) []string) accessor[T] { return accessor[T]{kind: kindList, list: f} }

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Keys are lower case. Each property answers to its wire name and its Go
// field name.
var (
	impressionFields = map[string]accessor[entity.Impression]{
		"id":           str(func(i *entity.Impression) string { return i.ID }),
		"impressionid": str(func(i *entity.Impression) string { return i.ID }),
		"bidfloor":     num(func(i *entity.Impression) float64 { return i.BidFloor }),
		"bidfloorcur":  str(func(i *entity.Impression) string { return i.BidCurrency }),
		"bidcurrency":  str(func(i *entity.Impression) string { return i.BidCurrency }),
		"secure":       num(func(i *entity.Impression) float64 { return boolNum(i.Secure) }),
	}

	userFields = map[string]accessor[entity.User]{
		"id":          str(func(u *entity.User) string { return u.ID }),
		"buyeruid":    str(func(u *entity.User) string { return u.BuyerID }),
		"buyerid":     str(func(u *entity.User) string { return u.BuyerID }),
		"yob":         num(func(u *entity.User) float64 { return float64(u.YearOfBirth) }),
		"yearofbirth": num(func(u *entity.User) float64 { return float64(u.YearOfBirth) }),
		"gender":      str(func(u *entity.User) string { return u.Gender }),
		"genderstr":   str(func(u *entity.User) string { return u.Gender }),
	}

	geoFields = map[string]accessor[entity.Geo]{
		"lat":       num(func(g *entity.Geo) float64 { return g.Latitude }),
		"latitude":  num(func(g *entity.Geo) float64 { return g.Latitude }),
		"lon":       num(func(g *entity.Geo) float64 { return g.Longitude }),
		"longitude": num(func(g *entity.Geo) float64 { return g.Longitude }),
		"country":   str(func(g *entity.Geo) string { return g.Country }),
		"region":    str(func(g *entity.Geo) string { return g.Region }),
		"city":      str(func(g *entity.Geo) string { return g.City }),
		"zip":       str(func(g *entity.Geo) string { return g.Zip }),
	}

	siteFields = map[string]accessor[entity.Site]{
		"id":             str(func(s *entity.Site) string { return s.ID }),
		"name":           str(func(s *entity.Site) string { return s.Name }),
		"domain":         str(func(s *entity.Site) string { return s.Domain }),
		"page":           str(func(s *entity.Site) string { return s.Page }),
		"cat":            list(func(s *entity.Site) []string { return s.Categories }),
		"categories":     list(func(s *entity.Site) []string { return s.Categories }),
		"sitecategories": list(func(s *entity.Site) []string { return s.Categories }),
	}

	deviceFields = map[string]accessor[entity.Device]{
		"ua":         str(func(d *entity.Device) string { return d.UserAgent }),
		"useragent":  str(func(d *entity.Device) string { return d.UserAgent }),
		"ip":         str(func(d *entity.Device) string { return d.IP }),
		"os":         str(func(d *entity.Device) string { return d.OS }),
		"devicetype": num(func(d *entity.Device) float64 { return float64(d.Type) }),
	}
)

// Compile builds the predicate for f. The predicate matches when any single
// rule matches. A nil filter compiles to Never.
func Compile(f *entity.BidFilter) (Predicate, error) {
	if f == nil {
		return Never, nil
	}
	imp, err := compileScope("imp", impressionFields, f.Impression)
	if err != nil {
		return nil, err
	}
	user, err := compileScope("user", userFields, f.User)
	if err != nil {
		return nil, err
	}
	geo, err := compileScope("geo", geoFields, f.Geo)
	if err != nil {
		return nil, err
	}
	site, err := compileScope("site", siteFields, f.Site)
	if err != nil {
		return nil, err
	}
	device, err := compileScope("device", deviceFields, f.Device)
	if err != nil {
		return nil, err
	}

	return func(req *entity.BidRequest) bool {
		if req == nil {
			return false
		}
		for i := range req.Impressions {
			if imp(&req.Impressions[i]) {
				return true
			}
		}
		return user(req.User) || geo(req.GeoOf()) || site(req.Site) || device(req.Device)
	}, nil
}

// compileScope compiles the rules for one object kind. The result is false
// for a nil object.
func compileScope[T any](scope string, table map[string]accessor[T], filters []entity.Filter) (func(*T) bool, error) {
	rules := make([]func(*T) bool, 0, len(filters))
	for i := range filters {
		r, err := compileRule(table, &filters[i])
		if err != nil {
			return nil, fmt.Errorf("%s filter %d: %w", scope, i, err)
		}
		rules = append(rules, r)
	}
	return func(v *T) bool {
		if v == nil {
			return false
		}
		for _, r := range rules {
			if r(v) {
				return true
			}
		}
		return false
	}, nil
}

func compileRule[T any](table map[string]accessor[T], f *entity.Filter) (func(*T) bool, error) {
	acc, ok := table[strings.ToLower(f.Property)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, f.Property)
	}

	candidates := f.Values
	if f.Value != "" {
		candidates = append(slices.Clone(f.Values), f.Value)
	}

	switch acc.kind {
	case kindNumber:
		return compileNumber(acc.num, f.Type, candidates)
	case kindList:
		return compileList(acc.list, f.Type, candidates)
	}
	return compileString(acc.str, f.Type, candidates)
}

func compileString[T any](get func(*T) string, op entity.FilterType, candidates []string) (func(*T) bool, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s needs a value", ErrInvalidValue, op)
	}
	want := candidates[len(candidates)-1]
	// An empty string is an absent property and never matches.
	guard := func(cmp func(string) bool) func(*T) bool {
		return func(v *T) bool {
			s := get(v)
			return s != "" && cmp(s)
		}
	}
	contains := func(s string) bool {
		for _, c := range candidates {
			if strings.Contains(s, c) {
				return true
			}
		}
		return false
	}

	switch op {
	case entity.FilterEQ:
		return guard(func(s string) bool { return s == want }), nil
	case entity.FilterNEQ:
		return guard(func(s string) bool { return s != want }), nil
	case entity.FilterLT:
		return guard(func(s string) bool { return s < want }), nil
	case entity.FilterLTE:
		return guard(func(s string) bool { return s <= want }), nil
	case entity.FilterGT:
		return guard(func(s string) bool { return s > want }), nil
	case entity.FilterGTE:
		return guard(func(s string) bool { return s >= want }), nil
	case entity.FilterIN:
		return guard(contains), nil
	case entity.FilterNOTIN:
		return guard(func(s string) bool { return !contains(s) }), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownOperator, op)
}

func compileNumber[T any](get func(*T) float64, op entity.FilterType, candidates []string) (func(*T) bool, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s needs a value", ErrInvalidValue, op)
	}
	nums := make([]float64, len(candidates))
	for i, c := range candidates {
		n, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, c)
		}
		nums[i] = n
	}
	want := nums[len(nums)-1]

	switch op {
	case entity.FilterEQ:
		return func(v *T) bool { return get(v) == want }, nil
	case entity.FilterNEQ:
		return func(v *T) bool { return get(v) != want }, nil
	case entity.FilterLT:
		return func(v *T) bool { return get(v) < want }, nil
	case entity.FilterLTE:
		return func(v *T) bool { return get(v) <= want }, nil
	case entity.FilterGT:
		return func(v *T) bool { return get(v) > want }, nil
	case entity.FilterGTE:
		return func(v *T) bool { return get(v) >= want }, nil
	case entity.FilterIN:
		return func(v *T) bool { return slices.Contains(nums, get(v)) }, nil
	case entity.FilterNOTIN:
		return func(v *T) bool { return !slices.Contains(nums, get(v)) }, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownOperator, op)
}

func compileList[T any](get func(*T) []string, op entity.FilterType, candidates []string) (func(*T) bool, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s needs a value", ErrInvalidValue, op)
	}
	hit := func(v *T) bool {
		for _, s := range get(v) {
			if slices.Contains(candidates, s) {
				return true
			}
		}
		return false
	}
	// An empty list is absent and never matches.
	present := func(v *T) bool { return len(get(v)) > 0 }

	switch op {
	case entity.FilterEQ, entity.FilterIN:
		return hit, nil
	case entity.FilterNEQ, entity.FilterNOTIN:
		return func(v *T) bool { return present(v) && !hit(v) }, nil
	}
	return nil, fmt.Errorf("%w: %s does not apply to a list", ErrUnknownOperator, op)
}
