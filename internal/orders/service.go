package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bunyod-abdulloh/vanillewebapp/models"
)

var (
	ErrClientNotFound    = errors.New("client not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Service owns the Order aggregate: an order plus its items, with the
// order's total_price kept equal to the sum of the items' subtotals on
// every item write.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ItemRequest is one (product, quantity) pair of a submission.
type ItemRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// CreateOrder opens a new order for the client under the client's
// shop. No items are attached yet, so the total starts at zero.
func (s *Service) CreateOrder(client *models.Client, comment string) (*models.Order, error) {
	return createOrder(s.db, client, comment)
}

func createOrder(tx *gorm.DB, client *models.Client, comment string) (*models.Order, error) {
	order := &models.Order{
		ShopID:     client.ShopID,
		ClientID:   client.ID,
		Status:     models.StatusCreated,
		TotalPrice: decimal.Zero,
		Comment:    comment,
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// AddItem attaches a product to the order. A nil unitPrice snapshots
// the product's current price; either way the price stored on the item
// is frozen from then on. The parent order's total is recomputed
// before returning.
func (s *Service) AddItem(order *models.Order, product *models.Product, quantity int, unitPrice *decimal.Decimal) (*models.OrderItem, error) {
	return addItem(s.db, order, product, quantity, unitPrice)
}

func addItem(tx *gorm.DB, order *models.Order, product *models.Product, quantity int, unitPrice *decimal.Decimal) (*models.OrderItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if product == nil || product.ID == 0 {
		return nil, ErrProductNotFound
	}
	price := product.Price
	if unitPrice != nil {
		price = *unitPrice
	}
	item := &models.OrderItem{
		OrderID:   order.ID,
		ProductID: product.ID,
		Quantity:  quantity,
		Price:     price,
		Subtotal:  price.Mul(decimal.NewFromInt(int64(quantity))),
	}
	if err := tx.Create(item).Error; err != nil {
		return nil, err
	}
	total, err := recomputeTotal(tx, order.ID)
	if err != nil {
		return nil, err
	}
	order.TotalPrice = total
	return item, nil
}

// RemoveItem deletes the item and recomputes the parent order's total
// from the remaining items.
func (s *Service) RemoveItem(item *models.OrderItem) error {
	if err := s.db.Delete(item).Error; err != nil {
		return err
	}
	_, err := recomputeTotal(s.db, item.OrderID)
	return err
}

// FinalizeTotal runs the total recompute once, for callers that added
// a batch of items and want a single closing pass.
func (s *Service) FinalizeTotal(orderID uint) error {
	_, err := recomputeTotal(s.db, orderID)
	return err
}

// recomputeTotal sums the order's current items and writes the result
// into orders.total_price with a scoped single-column update. The item
// write path is never re-entered from here.
func recomputeTotal(tx *gorm.DB, orderID uint) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := tx.Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(subtotal), 0)").
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	err := tx.Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("total_price", total).Error
	return total, err
}

// TransitionStatus moves the order forward through
// created -> confirmed -> delivered, or cancels it from any state,
// stamping the matching timestamp. Backward moves are rejected.
func (s *Service) TransitionStatus(order *models.Order, next models.OrderStatus) error {
	now := time.Now()
	updates := map[string]interface{}{"status": next}
	switch {
	case next == models.StatusCanceled:
	case order.Status == models.StatusCreated && next == models.StatusConfirmed:
		order.ConfirmedAt = &now
		updates["confirmed_at"] = &now
	case order.Status == models.StatusConfirmed && next == models.StatusDelivered:
		order.DeliveredAt = &now
		updates["delivered_at"] = &now
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
	}
	if err := s.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return err
	}
	order.Status = next
	return nil
}

// Submit runs a whole submission: resolve the client by telegram id,
// open the order, add every requested item (non-positive quantities
// are skipped), close with a final total pass. Everything after the
// client lookup runs in one transaction, so an unresolvable product
// aborts without leaving a partial order behind.
func (s *Service) Submit(telegramID int64, comment string, items []ItemRequest) (*models.Order, error) {
	var client models.Client
	if err := s.db.Where("telegram_id = ?", telegramID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	if comment == "" {
		comment = "Yo'q"
	}

	var order *models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = createOrder(tx, &client, comment)
		if err != nil {
			return err
		}
		for _, req := range items {
			if req.Quantity <= 0 {
				continue
			}
			var product models.Product
			if err := tx.First(&product, req.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: id=%d", ErrProductNotFound, req.ProductID)
				}
				return err
			}
			if _, err := addItem(tx, order, &product, req.Quantity, nil); err != nil {
				return err
			}
		}
		total, err := recomputeTotal(tx, order.ID)
		if err != nil {
			return err
		}
		order.TotalPrice = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Get loads an order with its items, product, client and shop resolved
// (the shape the notification report needs).
func (s *Service) Get(id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.
		Preload("Items.Product").
		Preload("Client").
		Preload("Shop").
		First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns orders newest first, optionally narrowed by status and
// shop, with client and shop resolved for display.
func (s *Service) List(status models.OrderStatus, shopID uint) ([]models.Order, error) {
	q := s.db.Preload("Client").Preload("Shop").Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if shopID != 0 {
		q = q.Where("shop_id = ?", shopID)
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// BulkSetStatus applies one status to a set of orders in a single
// update, stamping confirmed_at/delivered_at where the status calls
// for it. Deliberately permissive: no transition legality check.
func (s *Service) BulkSetStatus(ids []uint, status models.OrderStatus) (int64, error) {
	updates := map[string]interface{}{"status": status}
	now := time.Now()
	switch status {
	case models.StatusConfirmed:
		updates["confirmed_at"] = &now
	case models.StatusDelivered:
		updates["delivered_at"] = &now
	}
	res := s.db.Model(&models.Order{}).Where("id IN ?", ids).Updates(updates)
	return res.RowsAffected, res.Error
}
