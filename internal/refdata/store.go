// Package refdata provides read-only access to purchase orders, vendor
// records, and the item master used for cross-checking invoice lines.
package refdata

// POLine is one line of a historical purchase order.
type POLine struct {
	ItemCode  string  `json:"item_code"`
	Quantity  float64 `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
	Currency  string  `json:"currency"`
}

// PurchaseOrder is a historical order against which invoice prices are checked.
type PurchaseOrder struct {
	PONumber  string   `json:"po_number"`
	VendorID  string   `json:"vendor_id"`
	Currency  string   `json:"currency"`
	LineItems []POLine `json:"line_items"`
}

// Vendor is a registered supplier record.
type Vendor struct {
	VendorID string `json:"vendor_id"`
	Name     string `json:"name"`
	Country  string `json:"country,omitempty"`
}

// SKU is one entry of the item master.
type SKU struct {
	ItemCode    string `json:"item_code"`
	Description string `json:"description,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

// Store is the read-only reference data lookup. Implementations must be safe
// for concurrent reads.
type Store interface {
	// GetSKU returns the item master entry for itemCode, or false if absent.
	GetSKU(itemCode string) (*SKU, bool)
	// GetVendor returns the vendor record for vendorID, or false if absent.
	GetVendor(vendorID string) (*Vendor, bool)
	// GetPO returns the purchase order with the given number, or false if absent.
	GetPO(poNumber string) (*PurchaseOrder, bool)
	// FirstPOPrice scans purchase-order history in record order and returns the
	// unit price of the first line matching itemCode. The second return is false
	// when no order ever contained the item.
	FirstPOPrice(itemCode string) (float64, bool)
}
