package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	itemIDPrefix         = "item-"
	idempotencyKeyPrefix = "simp-"
)

// ItemIdentity returns the lower-cased vendor|PARTNO|name triple an item ID
// is derived from. Inputs are normalized text.
func ItemIdentity(vendor, partNo, itemName string) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(vendor)),
		strings.ToLower(strings.ToUpper(strings.TrimSpace(partNo))),
		strings.ToLower(strings.TrimSpace(itemName)),
	}, "|")
}

// DeriveItemID hashes the identity triple with djb2 (h = h*33 + rune, 32-bit)
// and renders it as "item-" plus eight hex digits. The same triple yields the
// same ID in every batch and every process.
func DeriveItemID(vendor, partNo, itemName string) string {
	return itemIDPrefix + djb2(ItemIdentity(vendor, partNo, itemName))
}

func djb2(s string) string {
	var h uint32 = 5381
	for _, r := range s {
		h = h*33 + uint32(r)
	}
	return fmt.Sprintf("%08x", h)
}

// DeriveIdempotencyKey fingerprints an entry's business content and source
// position: the first 16 hex digits of SHA-256 over
// date|vendor|itemName|qty|unitPrice|currency|docType|sourceRowRef.
//
// The source position is part of the key, so identical rows at different
// positions stay distinct entries.
func DeriveIdempotencyKey(e LedgerEntry) string {
	currency := e.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	src := strings.Join([]string{
		e.OccurredDate,
		e.Vendor,
		e.ItemName,
		e.Quantity.String(),
		e.UnitPrice.String(),
		currency,
		string(e.DocType),
		e.SourceRowRef,
	}, "|")
	sum := sha256.Sum256([]byte(src))
	return idempotencyKeyPrefix + hex.EncodeToString(sum[:])[:16]
}
