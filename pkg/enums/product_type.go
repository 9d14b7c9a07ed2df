package enums

import "fmt"

// ProductType categorizes poultry marketplace listings.
type ProductType string

const (
	ProductTypeEggs      ProductType = "eggs"
	ProductTypeBroilers  ProductType = "broilers"
	ProductTypeLayers    ProductType = "layers"
	ProductTypeChicks    ProductType = "chicks"
	ProductTypeFeeds     ProductType = "feeds"
	ProductTypeEquipment ProductType = "equipment"
)

var validProductTypes = []ProductType{
	ProductTypeEggs,
	ProductTypeBroilers,
	ProductTypeLayers,
	ProductTypeChicks,
	ProductTypeFeeds,
	ProductTypeEquipment,
}

// String implements fmt.Stringer.
func (p ProductType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductType.
func (p ProductType) IsValid() bool {
	for _, candidate := range validProductTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductType converts raw input into a ProductType.
func ParseProductType(value string) (ProductType, error) {
	for _, candidate := range validProductTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product type %q", value)
}
