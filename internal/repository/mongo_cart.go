package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/go_fulfill/internal/domain"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// cartItemDoc / cartDoc are the storage shapes. Money travels as strings so
// fixed-point values survive the bson round trip exactly; variants are kept
// as a serialized blob and decoded back at this boundary.
type cartItemDoc struct {
	ProductID int64     `bson:"product_id"`
	Quantity  int       `bson:"quantity"`
	UnitPrice string    `bson:"unit_price"`
	Variant   []byte    `bson:"variant,omitempty"`
	AddedAt   time.Time `bson:"added_at"`
}

type cartDoc struct {
	ID        string        `bson:"_id"`
	UserID    string        `bson:"user_id,omitempty"`
	SessionID string        `bson:"session_id,omitempty"`
	WebsiteID string        `bson:"website_id"`
	Items     []cartItemDoc `bson:"items"`
	Subtotal  string        `bson:"subtotal"`
	Tax       string        `bson:"tax"`
	Shipping  string        `bson:"shipping"`
	Discount  string        `bson:"discount"`
	Total     string        `bson:"total"`
	ExpiresAt time.Time     `bson:"expires_at"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

func toCartDoc(cart *domain.Cart) (*cartDoc, error) {
	doc := &cartDoc{
		ID:        cart.ID,
		UserID:    cart.UserID,
		SessionID: cart.SessionID,
		WebsiteID: cart.WebsiteID,
		Subtotal:  cart.Subtotal.String(),
		Tax:       cart.Tax.String(),
		Shipping:  cart.Shipping.String(),
		Discount:  cart.Discount.String(),
		Total:     cart.Total.String(),
		ExpiresAt: cart.ExpiresAt,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	doc.Items = make([]cartItemDoc, 0, len(cart.Items))
	for _, item := range cart.Items {
		raw, err := domain.EncodeVariant(item.Variant)
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, cartItemDoc{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			Variant:   raw,
			AddedAt:   item.AddedAt,
		})
	}
	return doc, nil
}

func fromCartDoc(doc *cartDoc) (*domain.Cart, error) {
	parse := func(s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	}

	cart := &domain.Cart{
		ID:        doc.ID,
		UserID:    doc.UserID,
		SessionID: doc.SessionID,
		WebsiteID: doc.WebsiteID,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}

	var err error
	if cart.Subtotal, err = parse(doc.Subtotal); err != nil {
		return nil, fmt.Errorf("parse subtotal: %w", err)
	}
	if cart.Tax, err = parse(doc.Tax); err != nil {
		return nil, fmt.Errorf("parse tax: %w", err)
	}
	if cart.Shipping, err = parse(doc.Shipping); err != nil {
		return nil, fmt.Errorf("parse shipping: %w", err)
	}
	if cart.Discount, err = parse(doc.Discount); err != nil {
		return nil, fmt.Errorf("parse discount: %w", err)
	}
	if cart.Total, err = parse(doc.Total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	cart.Items = make([]domain.CartItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		price, err := parse(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		variant, err := domain.DecodeVariant(it.Variant)
		if err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: price,
			Variant:   variant,
			AddedAt:   it.AddedAt,
		})
	}
	return cart, nil
}

type mongoCartRepository struct {
	collection *mongo.Collection
}

// NewMongoCartRepository stores carts one document per cart, keyed by cart id.
func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{collection: db.Collection("carts")}
}

func (m *mongoCartRepository) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return m.findOne(ctx, bson.M{"_id": cartID})
}

func (m *mongoCartRepository) FindByOwner(ctx context.Context, userID, sessionID, websiteID string) (*domain.Cart, error) {
	filter := bson.M{"website_id": websiteID}
	if userID != "" {
		filter["user_id"] = userID
	} else {
		filter["session_id"] = sessionID
	}
	return m.findOne(ctx, filter)
}

func (m *mongoCartRepository) findOne(ctx context.Context, filter bson.M) (*domain.Cart, error) {
	var doc cartDoc
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return fromCartDoc(&doc)
}

func (m *mongoCartRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	doc, err := toCartDoc(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	filter := bson.M{"_id": cart.ID}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

func (m *mongoCartRepository) DeleteCart(ctx context.Context, cartID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": cartID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *mongoCartRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	filter := bson.M{"expires_at": bson.M{"$gt": time.Time{}, "$lt": now}}
	result, err := m.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired carts: %w", err)
	}
	return int(result.DeletedCount), nil
}
