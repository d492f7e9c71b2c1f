package refcache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/shopspring/decimal"
)

// normalizeProducts converts raw backend records into cache rows. Records
// without an id are dropped; a repeated id keeps the last occurrence.
func normalizeProducts(records []map[string]any, now time.Time) []models.CachedProduct {
	out := make([]models.CachedProduct, 0, len(records))
	index := make(map[string]int, len(records))
	for _, rec := range records {
		id := stringField(rec, "id")
		if id == "" {
			continue
		}
		row := models.CachedProduct{
			ID:          id,
			Name:        stringField(rec, "name"),
			SKU:         stringField(rec, "sku"),
			Barcode:     stringField(rec, "barcode"),
			Category:    stringField(rec, "category"),
			Price:       decimalField(rec, "price"),
			TaxRate:     decimalField(rec, "taxRate", "tax_rate"),
			Stock:       intField(rec, "stock", "stockQuantity"),
			Active:      boolField(rec, true, "active", "isActive"),
			RefreshedAt: now,
		}
		if i, seen := index[id]; seen {
			out[i] = row
			continue
		}
		index[id] = len(out)
		out = append(out, row)
	}
	return out
}

func normalizeCustomers(records []map[string]any, now time.Time) []models.CachedCustomer {
	out := make([]models.CachedCustomer, 0, len(records))
	index := make(map[string]int, len(records))
	for _, rec := range records {
		id := stringField(rec, "id")
		if id == "" {
			continue
		}
		row := models.CachedCustomer{
			ID:            id,
			Name:          stringField(rec, "name"),
			Email:         stringField(rec, "email"),
			Phone:         stringField(rec, "phone"),
			LoyaltyPoints: intField(rec, "loyaltyPoints", "loyalty_points"),
			Balance:       decimalField(rec, "balance"),
			RefreshedAt:   now,
		}
		if i, seen := index[id]; seen {
			out[i] = row
			continue
		}
		index[id] = len(out)
		out = append(out, row)
	}
	return out
}

func lookup(rec map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(rec map[string]any, keys ...string) string {
	v, ok := lookup(rec, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// decimalField coerces strings and numbers; anything unparseable becomes zero.
func decimalField(rec map[string]any, keys ...string) decimal.Decimal {
	v, ok := lookup(rec, keys...)
	if !ok {
		return decimal.Zero
	}
	switch t := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	}
	return decimal.Zero
}

func intField(rec map[string]any, keys ...string) int {
	return int(decimalField(rec, keys...).IntPart())
}

func boolField(rec map[string]any, fallback bool, keys ...string) bool {
	v, ok := lookup(rec, keys...)
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	case json.Number:
		return t.String() != "0"
	}
	return fallback
}
