// internal/models/product.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a row of the product dimension table. One row per ProductID.
type Product struct {
	ProductID   int64           `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	Title       string          `json:"title" gorm:"type:text;not null" validate:"required"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null;check:chk_products_price,price >= 0" validate:"gte=0,lte=99999999.99"`
	Category    string          `json:"category" gorm:"type:text;not null" validate:"required"`
	Rating      decimal.Decimal `json:"rating" gorm:"type:decimal(3,2);not null;check:chk_products_rating,rating >= 0 AND rating <= 5" validate:"gte=0,lte=5"`
	RatingCount int64           `json:"rating_count" gorm:"not null;check:chk_products_rating_count,rating_count >= 0" validate:"gte=0"`
	LoadedAt    time.Time       `json:"loaded_at" gorm:"not null"`
}

func (Product) TableName() string {
	return "products"
}

// ProductColumns is the column order of the products table.
var ProductColumns = []string{
	"product_id", "title", "price", "category", "rating", "rating_count", "loaded_at",
}
