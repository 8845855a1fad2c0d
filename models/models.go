package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Shop struct {
	gorm.Model
	Name    string   `gorm:"size:100;uniqueIndex" json:"name"`
	Clients []Client `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Client is one registered buyer, keyed in practice by its Telegram
// chat id. The id is not a DB unique: duplicates are rejected by the
// registration endpoint instead.
type Client struct {
	gorm.Model
	ShopID     uint            `json:"shop_id"`
	Shop       Shop            `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	FilialName string          `gorm:"size:100" json:"filial_name"`
	TelegramID int64           `gorm:"index" json:"telegram_id"`
	FullName   string          `gorm:"size:200" json:"full_name"`
	Phone      string          `gorm:"size:20" json:"phone"`
	Latitude   decimal.Decimal `gorm:"type:decimal(9,6)" json:"latitude"`
	Longitude  decimal.Decimal `gorm:"type:decimal(9,6)" json:"longitude"`
}

type Category struct {
	gorm.Model
	Name     string    `gorm:"size:100" json:"name"`
	Products []Product `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Product struct {
	gorm.Model
	CategoryID  uint            `json:"category_id"`
	Category    Category        `json:"-"`
	Name        string          `gorm:"size:200" json:"name"`
	Price       decimal.Decimal `gorm:"type:decimal(10,0)" json:"price"`
	ImageURL    string          `gorm:"size:255" json:"image_url"`
	Description string          `json:"description"`
	IsAvailable bool            `gorm:"default:true" json:"is_available"`
}

type OrderStatus string

const (
	StatusCreated   OrderStatus = "created"
	StatusConfirmed OrderStatus = "confirmed"
	StatusDelivered OrderStatus = "delivered"
	StatusCanceled  OrderStatus = "canceled"
)

// Order carries its own TotalPrice column. The column is derived:
// every OrderItem write goes through internal/orders, which recomputes
// it as the sum of the items' subtotals.
type Order struct {
	gorm.Model
	ShopID      uint            `json:"shop_id"`
	Shop        Shop            `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ClientID    uint            `json:"client_id"`
	Client      Client          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Status      OrderStatus     `gorm:"size:20;default:created" json:"status"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"total_price"`
	ConfirmedAt *time.Time      `json:"confirmed_at"`
	DeliveredAt *time.Time      `json:"delivered_at"`
	Comment     string          `json:"comment"`
	Items       []OrderItem     `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// OrderItem freezes the unit price at creation time; later catalog
// price changes never touch historical orders.
type OrderItem struct {
	gorm.Model
	OrderID   uint            `gorm:"index" json:"order_id"`
	ProductID uint            `json:"product_id"`
	Product   Product         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
}
