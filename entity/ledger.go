package entity

import (
	"github.com/google/uuid"
	codec "github.com/oy3o/bidstream"
)

type LedgerEntryType int32

const (
	LedgerUnknown LedgerEntryType = iota
	LedgerBid
	LedgerWin
)

// LedgerEntry records one charge against a budget.
type LedgerEntry struct {
	ID              string
	SecondaryID     uuid.UUID
	EntryType       LedgerEntryType
	OriginalAmount  float64
	RemainingAmount float64
}

var LedgerEntrySchema = codec.NewSchema(
	codec.String(1, "id", func(e *LedgerEntry) *string { return &e.ID }),
	codec.GUID(2, "secondary", func(e *LedgerEntry) *uuid.UUID { return &e.SecondaryID }),
	codec.Enum(3, "entrytype", func(e *LedgerEntry) *LedgerEntryType { return &e.EntryType }),
	codec.Float64(4, "original", func(e *LedgerEntry) *float64 { return &e.OriginalAmount }),
	codec.Float64(5, "remaining", func(e *LedgerEntry) *float64 { return &e.RemainingAmount }),
)
