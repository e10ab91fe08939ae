package refdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// File names expected inside the reference data directory.
const (
	poRecordsFile = "PO_Records.json"
	vendorsFile   = "vendors.json"
	skuMasterFile = "sku_master.json"
)

// JSONStore is a Store backed by JSON files loaded once at construction.
// All lookups read immutable in-memory data and are safe for concurrent use.
type JSONStore struct {
	pos     []PurchaseOrder
	vendors map[string]*Vendor
	skus    map[string]*SKU
}

// NewJSONStore loads reference data from dir. PO records and the SKU master are
// required; a missing vendors file is tolerated and treated as empty.
func NewJSONStore(dir string, logger *zap.Logger) (*JSONStore, error) {
	s := &JSONStore{
		vendors: make(map[string]*Vendor),
		skus:    make(map[string]*SKU),
	}

	if err := loadJSON(filepath.Join(dir, poRecordsFile), &s.pos); err != nil {
		return nil, fmt.Errorf("load PO records: %w", err)
	}
	var skus []SKU
	if err := loadJSON(filepath.Join(dir, skuMasterFile), &skus); err != nil {
		return nil, fmt.Errorf("load SKU master: %w", err)
	}
	for i := range skus {
		s.skus[skus[i].ItemCode] = &skus[i]
	}

	var vendors []Vendor
	if err := loadJSON(filepath.Join(dir, vendorsFile), &vendors); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load vendors: %w", err)
		}
		if logger != nil {
			logger.Warn("vendors file missing, continuing with empty vendor list",
				zap.String("path", filepath.Join(dir, vendorsFile)))
		}
	}
	for i := range vendors {
		s.vendors[vendors[i].VendorID] = &vendors[i]
	}

	if logger != nil {
		logger.Info("reference data loaded",
			zap.Int("purchase_orders", len(s.pos)),
			zap.Int("skus", len(s.skus)),
			zap.Int("vendors", len(s.vendors)))
	}
	return s, nil
}

func loadJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// GetSKU returns the item master entry for itemCode.
func (s *JSONStore) GetSKU(itemCode string) (*SKU, bool) {
	sku, ok := s.skus[itemCode]
	return sku, ok
}

// GetVendor returns the vendor record for vendorID.
func (s *JSONStore) GetVendor(vendorID string) (*Vendor, bool) {
	v, ok := s.vendors[vendorID]
	return v, ok
}

// GetPO returns the purchase order with the given number.
func (s *JSONStore) GetPO(poNumber string) (*PurchaseOrder, bool) {
	for i := range s.pos {
		if s.pos[i].PONumber == poNumber {
			return &s.pos[i], true
		}
	}
	return nil, false
}

// FirstPOPrice returns the unit price of the first line in PO history matching
// itemCode. Record order decides which historical price wins.
func (s *JSONStore) FirstPOPrice(itemCode string) (float64, bool) {
	for i := range s.pos {
		for j := range s.pos[i].LineItems {
			if s.pos[i].LineItems[j].ItemCode == itemCode {
				return s.pos[i].LineItems[j].UnitPrice, true
			}
		}
	}
	return 0, false
}
