package domain

import "time"

// Product lives in the catalog ledger. Stock and Sold are the only fields the
// order lifecycle ever mutates, and only through atomic counter adjustments.
type Product struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Sold        int       `json:"sold"`
	EcoPoints   float64   `json:"eco_points"`
	ImageURL    string    `json:"image_url,omitempty"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}
