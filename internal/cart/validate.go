package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_fulfill/internal/catalog"
	"github.com/fjod/go_fulfill/internal/inventory"
)

type IssueLevel string

const (
	LevelError   IssueLevel = "ERROR"
	LevelWarning IssueLevel = "WARNING"
)

// ValidationIssue is one finding from Validate. Errors block checkout at the
// route layer; warnings (partial stock, price drift) are surfaced but never
// block on their own.
type ValidationIssue struct {
	Level     IssueLevel `json:"level"`
	Code      string     `json:"code"`
	ProductID int64      `json:"product_id"`
	Message   string     `json:"message"`
}

const (
	CodeProductGone       = "PRODUCT_NOT_FOUND"
	CodeProductInactive   = "PRODUCT_INACTIVE"
	CodeOutOfStock        = "OUT_OF_STOCK"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodePriceChanged      = "PRICE_CHANGED"
)

/// Validate checks every line against the catalog and the inventory ledger:
// product still sellable, stock covers the requested quantity (zero stock is
// an error, partial stock a warning), and the snapshotted price still matches
// the catalog. Price drift is a warning only and never blocks checkout here.
func (s *CartService) Validate(ctx context.Context, cartID string) ([]ValidationIssue, error) {
	cart, err := s.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	for _, item := range cart.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				issues = append(issues, ValidationIssue{
					Level: LevelError, Code: CodeProductGone, ProductID: item.ProductID,
					Message: "product no longer exists",
				})
				continue
			}
			return nil, err
		}

		if !product.Active {
			issues = append(issues, ValidationIssue{
				Level: LevelError, Code: CodeProductInactive, ProductID: item.ProductID,
				Message: fmt.Sprintf("%s is no longer sellable", product.Name),
			})
		}

		if product.TrackInventory {
			stock, err := s.ledger.Get(ctx, item.ProductID)
			if err != nil && !errors.Is(err, inventory.ErrProductNotFound) {
				return nil, err
			}
			if err == nil && stock < item.Quantity {
				if stock == 0 {
					issues = append(issues, ValidationIssue{
						Level: LevelError, Code: CodeOutOfStock, ProductID: item.ProductID,
						Message: fmt.Sprintf("%s is out of stock", product.Name),
					})
				} else {
					issues = append(issues, ValidationIssue{
						Level: LevelWarning, Code: CodeInsufficientStock, ProductID: item.ProductID,
						Message: fmt.Sprintf("only %d of %s left, %d requested", stock, product.Name, item.Quantity),
					})
				}
			}
		}

		if !product.Price.Equal(item.UnitPrice) {
			issues = append(issues, ValidationIssue{
				Level: LevelWarning, Code: CodePriceChanged, ProductID: item.ProductID,
				Message: fmt.Sprintf("price changed from %s to %s", item.UnitPrice, product.Price),
			})
		}
	}
	return issues, nil
}

// Stats is the read-model summary exposed to the route layer.
type Stats struct {
	ItemCount     int    `json:"item_count"`
	TotalQuantity int    `json:"total_quantity"`
	Subtotal      string `json:"subtotal"`
	Total         string `json:"total"`
}

func (s *CartService) GetStats(ctx context.Context, cartID string) (*Stats, error) {
	cart, err := s.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		ItemCount:     cart.ItemCount(),
		TotalQuantity: cart.TotalQuantity(),
		Subtotal:      cart.Subtotal.String(),
		Total:         cart.Total.String(),
	}, nil
}
