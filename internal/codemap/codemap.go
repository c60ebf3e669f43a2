// Package codemap translates seller codes printed on Watson invoices into the
// supplier's own product codes.
package codemap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type Entry struct {
	ItemCode    string  `json:"itemCode" toml:"item_code"`
	Description string  `json:"description" toml:"description"`
	Barcode     string  `json:"barcode" toml:"barcode"`
	SellerCode  *string `json:"sellerCode" toml:"seller_code"`
}

// Mapping is read-only after New and safe for concurrent use.
type Mapping struct {
	bySeller map[string]string
	byItem   map[string]string
	entries  []Entry
}

func New(entries []Entry) *Mapping {
	m := &Mapping{
		bySeller: map[string]string{},
		byItem:   map[string]string{},
		entries:  entries,
	}
	for _, e := range entries {
		item := strings.TrimSpace(e.ItemCode)
		if item == "" || e.SellerCode == nil {
			continue
		}
		seller := strings.TrimSpace(*e.SellerCode)
		if seller == "" {
			continue
		}
		m.bySeller[seller] = item
		m.byItem[item] = seller
	}
	return m
}

// Load reads a mapping file: a JSON array of entries, or a TOML document
// with [[entry]] tables.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var doc struct {
			Entry []Entry `toml:"entry"`
		}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		entries = doc.Entry
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return New(entries), nil
}

// ProductCode returns the product code for a seller code. Codes that are
// already product codes, or unknown, come back trimmed and otherwise unchanged.
func (m *Mapping) ProductCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if m == nil || trimmed == "" {
		return trimmed
	}
	if item, ok := m.bySeller[trimmed]; ok {
		return item
	}
	return trimmed
}

func (m *Mapping) SellerCode(itemCode string) (string, bool) {
	if m == nil {
		return "", false
	}
	seller, ok := m.byItem[strings.TrimSpace(itemCode)]
	return seller, ok
}

func (m *Mapping) Known(code string) bool {
	if m == nil {
		return false
	}
	trimmed := strings.TrimSpace(code)
	_, seller := m.bySeller[trimmed]
	_, item := m.byItem[trimmed]
	return seller || item
}

func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.bySeller)
}
