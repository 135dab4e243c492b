package items

import "github.com/shopspring/decimal"

// CreateItemRequest is the payload for receiving goods into a receipt.
type CreateItemRequest struct {
	ReceiptID  int64           `json:"receipt_id" validate:"required,gt=0"`
	Commodity  string          `json:"commodity" validate:"required,max=200"`
	SKU        string          `json:"sku" validate:"required,max=64"`
	Unit       string          `json:"unit" validate:"required,max=20"`
	InitialQty decimal.Decimal `json:"initial_qty" validate:"required"`
}

// AdjustItemRequest is the payload for a manual quantity correction.
type AdjustItemRequest struct {
	Delta  decimal.Decimal `json:"delta" validate:"required"`
	Reason string          `json:"reason" validate:"max=255"`
}
