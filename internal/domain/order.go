package domain

import "time"

// OrderItem is a snapshot of a product at checkout time. Name, price, carbon
// points and image are captured once and never re-read from the catalog, so
// historical orders do not change when a seller edits a product later.
//
// SellerStatus is the working status the item's seller advances. It is
// independent of the order header status except that a terminal header
// transition (CANCELLED/RETURNED) forces it; the reverse never happens.
type OrderItem struct {
	ProductID    string  `json:"product_id"`
	SellerID     string  `json:"seller_id"`
	ProductName  string  `json:"product_name"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
	CarbonPoints float64 `json:"carbon_points"`
	ImageURL     string  `json:"image_url,omitempty"`
	Status       Status  `json:"status"`
	SellerStatus Status  `json:"seller_status"`
}

type Order struct {
	ID                string      `json:"id"`
	BuyerID           string      `json:"buyer_id"`
	BuyerName         string      `json:"buyer_name"`
	BuyerEmail        string      `json:"buyer_email"`
	Address           string      `json:"address"`
	PaymentMethod     string      `json:"payment_method"`
	DeliveryCharge    float64     `json:"delivery_charge"`
	Discount          float64     `json:"discount"`
	TotalAmount       float64     `json:"total_amount"`
	TotalCarbonPoints float64     `json:"total_carbon_points"`
	Status            Status      `json:"status"`
	Items             []OrderItem `json:"items"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Item returns the unique line item sold by sellerID for productID, or nil.
func (o *Order) Item(sellerID, productID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].SellerID == sellerID && o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// ItemsForSeller returns copies of the line items belonging to sellerID.
func (o *Order) ItemsForSeller(sellerID string) []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			items = append(items, item)
		}
	}
	return items
}
