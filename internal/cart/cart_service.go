package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_fulfill/internal/cache"
	"github.com/fjod/go_fulfill/internal/catalog"
	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/inventory"
	"github.com/fjod/go_fulfill/internal/repository"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrProductNotActive  = errors.New("product is not sellable")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrMissingOwner      = errors.New("cart needs a user id or a session id")
)

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Catalog
	ledger  inventory.Ledger
	logger  *zap.Logger

	sfg   singleflight.Group // Prevents cache stampede
	locks sync.Map           // cartID -> *sync.Mutex, serializes mutations per cart
}

func NewCartService(repo repository.CartRepository, cartCache cache.CartCache, cat catalog.Catalog, ledger inventory.Ledger, logger *zap.Logger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cartCache,
		catalog: cat,
		ledger:  ledger,
		logger:  logger,
	}
}

// lockFor serializes all mutations against one cart id. Reads go through the
// cache and do not take the lock.
func (s *CartService) lockFor(cartID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(cartID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *CartService) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(cartID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return cart, nil // cart is in cache
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get error", zap.Error(err)) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, cartID)
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), cartID, cart); errSet != nil {
				s.logger.Warn("cache set error", zap.Error(errSet))
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// GetOrCreate finds the live cart for the owner or creates an empty one.
// Exactly one of userID / sessionID identifies the owner.
func (s *CartService) GetOrCreate(ctx context.Context, userID, sessionID, websiteID string) (*domain.Cart, error) {
	if userID == "" && sessionID == "" {
		return nil, ErrMissingOwner
	}

	cart, err := s.repo.FindByOwner(ctx, userID, sessionID, websiteID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}

	now := time.Now()
	cart = &domain.Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		WebsiteID: websiteID,
		Subtotal:  decimal.Zero,
		Tax:       decimal.Zero,
		Shipping:  decimal.Zero,
		Discount:  decimal.Zero,
		Total:     decimal.Zero,
		ExpiresAt: now.Add(domain.DefaultCartTTL),
	}
	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// AddItem upserts on (productID, variant): an existing line gains quantity.
// The unit price is snapshotted from the catalog at add time.
func (s *CartService) AddItem(ctx context.Context, cartID string, productID int64, quantity int, variant *domain.Variant) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, ErrProductNotActive
	}

	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		cart.UpsertItem(domain.CartItem{
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: product.Price,
			Variant:   variant,
			AddedAt:   time.Now(),
		})
		return nil
	})
}

// UpdateItem sets the line quantity. Quantity <= 0 removes the line; that is
// documented policy, equivalent to RemoveItem.
func (s *CartService) UpdateItem(ctx context.Context, cartID string, productID int64, variant *domain.Variant, quantity int) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		if !cart.SetItemQuantity(productID, variant, quantity) {
			return ErrItemNotFound
		}
		return nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, cartID string, productID int64, variant *domain.Variant) (*domain.Cart, error) {
	return s.UpdateItem(ctx, cartID, productID, variant, 0)
}

// Clear empties the cart but keeps it alive for further shopping.
func (s *CartService) Clear(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		cart.Items = nil
		cart.Discount = decimal.Zero
		cart.RecomputeTotals()
		return nil
	})
}

// Delete removes the cart entirely (checkout consumed it).
func (s *CartService) Delete(ctx context.Context, cartID string) error {
	lock := s.lockFor(cartID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		return err
	}
	s.invalidate(cartID)
	return nil
}

// Merge re-adds every source line into the target (quantities combine) and
// deletes the source. A missing or empty source is a no-op on the target.
func (s *CartService) Merge(ctx context.Context, sourceID, targetID string) (*domain.Cart, error) {
	if sourceID == targetID {
		return s.GetCart(ctx, targetID)
	}

	// Deterministic lock order avoids deadlock between concurrent merges.
	first, second := sourceID, targetID
	if first > second {
		first, second = second, first
	}
	firstLock, secondLock := s.lockFor(first), s.lockFor(second)
	firstLock.Lock()
	defer firstLock.Unlock()
	secondLock.Lock()
	defer secondLock.Unlock()

	source, err := s.repo.GetCart(ctx, sourceID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return s.repo.GetCart(ctx, targetID)
		}
		return nil, err
	}

	target, err := s.repo.GetCart(ctx, targetID)
	if err != nil {
		return nil, err
	}

	for _, item := range source.Items {
		target.UpsertItem(item)
	}

	if err := s.repo.UpsertCart(ctx, target); err != nil {
		return nil, fmt.Errorf("persist merged cart: %w", err)
	}
	if err := s.repo.DeleteCart(ctx, sourceID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return nil, fmt.Errorf("delete merged source cart: %w", err)
	}

	s.invalidate(sourceID)
	s.invalidate(targetID)
	return target, nil
}

func (s *CartService) mutate(ctx context.Context, cartID string, apply func(*domain.Cart) error) (*domain.Cart, error) {
	lock := s.lockFor(cartID)
	lock.Lock()
	defer lock.Unlock()

	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if err := apply(cart); err != nil {
		return nil, err
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("persist cart: %w", err)
	}

	s.invalidate(cartID)
	return cart, nil
}

func (s *CartService) invalidate(cartID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, cartID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("cart_id", cartID), zap.Error(err))
	}
}
