// internal/domain/models/product.go
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// ProductType is the closed set of beverage kinds the catalog sells.
type ProductType string

const (
	ProductTypeBeer      ProductType = "beer"
	ProductTypeWine      ProductType = "wine"
	ProductTypeSoftDrink ProductType = "softdrink"
)

// ProductTypes returns every valid ProductType in declaration order.
func ProductTypes() []ProductType {
	return []ProductType{ProductTypeBeer, ProductTypeWine, ProductTypeSoftDrink}
}

// Valid reports whether t is one of ProductTypes.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeBeer, ProductTypeWine, ProductTypeSoftDrink:
		return true
	}
	return false
}

// Product is a catalog entry as stored in the products collection.
// The collection validator rejects any field not declared here.
type Product struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Name         string             `bson:"name" json:"name"`
	Position     string             `bson:"position" json:"position"`
	Type         ProductType        `bson:"type" json:"type"`
	Description  string             `bson:"description" json:"description"`
	SellingPrice float64            `bson:"selling_price" json:"selling_price"`
}
