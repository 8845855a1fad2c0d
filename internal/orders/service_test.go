package orders

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bunyod-abdulloh/vanillewebapp/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Shop{},
		&models.Client{},
		&models.Category{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
	))
	return db
}

type fixtures struct {
	client models.Client
	osh    models.Product
	somsa  models.Product
}

func seed(t *testing.T, db *gorm.DB) fixtures {
	shop := models.Shop{Name: "Navruz"}
	require.NoError(t, db.Create(&shop).Error)

	client := models.Client{
		ShopID:     shop.ID,
		FilialName: "Chilonzor",
		TelegramID: 42,
		FullName:   "Aziz Karimov",
		Phone:      "+998901234567",
		Latitude:   decimal.RequireFromString("41.311081"),
		Longitude:  decimal.RequireFromString("69.240562"),
	}
	require.NoError(t, db.Create(&client).Error)

	cat := models.Category{Name: "Taomlar"}
	require.NoError(t, db.Create(&cat).Error)

	osh := models.Product{CategoryID: cat.ID, Name: "Osh", Price: decimal.NewFromInt(10000)}
	somsa := models.Product{CategoryID: cat.ID, Name: "Somsa", Price: decimal.NewFromInt(5000)}
	require.NoError(t, db.Create(&osh).Error)
	require.NoError(t, db.Create(&somsa).Error)

	return fixtures{client: client, osh: osh, somsa: somsa}
}

// persistedTotal reads orders.total_price straight from the DB, not
// from any in-memory copy.
func persistedTotal(t *testing.T, db *gorm.DB, orderID uint) decimal.Decimal {
	var order models.Order
	require.NoError(t, db.First(&order, orderID).Error)
	return order.TotalPrice
}

func sumOfItems(t *testing.T, db *gorm.DB, orderID uint) decimal.Decimal {
	var total decimal.Decimal
	row := db.Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(subtotal), 0)").
		Row()
	require.NoError(t, row.Scan(&total))
	return total
}

func assertDecimalEqual(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func TestCreateOrderStartsEmpty(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "tezroq")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCreated, order.Status)
	assert.Equal(t, fx.client.ShopID, order.ShopID)
	assert.Equal(t, "tezroq", order.Comment)
	assertDecimalEqual(t, decimal.Zero, persistedTotal(t, db, order.ID))
	assert.Nil(t, order.ConfirmedAt)
	assert.Nil(t, order.DeliveredAt)
}

func TestTotalTracksItemMutations(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)

	first, err := svc.AddItem(order, &fx.osh, 2, nil)
	require.NoError(t, err)
	assertDecimalEqual(t, decimal.NewFromInt(20000), persistedTotal(t, db, order.ID))

	second, err := svc.AddItem(order, &fx.somsa, 1, nil)
	require.NoError(t, err)
	assertDecimalEqual(t, decimal.NewFromInt(25000), persistedTotal(t, db, order.ID))
	assertDecimalEqual(t, sumOfItems(t, db, order.ID), persistedTotal(t, db, order.ID))

	require.NoError(t, svc.RemoveItem(first))
	assertDecimalEqual(t, decimal.NewFromInt(5000), persistedTotal(t, db, order.ID))
	assertDecimalEqual(t, sumOfItems(t, db, order.ID), persistedTotal(t, db, order.ID))

	require.NoError(t, svc.RemoveItem(second))
	assertDecimalEqual(t, decimal.Zero, persistedTotal(t, db, order.ID))
}

func TestRemoveItemSubtractsExactSubtotal(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)
	item, err := svc.AddItem(order, &fx.osh, 3, nil)
	require.NoError(t, err)
	_, err = svc.AddItem(order, &fx.somsa, 2, nil)
	require.NoError(t, err)

	before := persistedTotal(t, db, order.ID)
	require.NoError(t, svc.RemoveItem(item))
	after := persistedTotal(t, db, order.ID)

	assertDecimalEqual(t, before.Sub(item.Subtotal), after)
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)
	item, err := svc.AddItem(order, &fx.osh, 1, nil)
	require.NoError(t, err)

	// Catalog price change after the fact.
	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", fx.osh.ID).
		Update("price", decimal.NewFromInt(99000)).Error)

	var stored models.OrderItem
	require.NoError(t, db.First(&stored, item.ID).Error)
	assertDecimalEqual(t, decimal.NewFromInt(10000), stored.Price)
	assertDecimalEqual(t, decimal.NewFromInt(10000), persistedTotal(t, db, order.ID))
}

func TestAddItemExplicitUnitPrice(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)
	override := decimal.NewFromInt(8000)
	item, err := svc.AddItem(order, &fx.osh, 2, &override)
	require.NoError(t, err)

	assertDecimalEqual(t, override, item.Price)
	assertDecimalEqual(t, decimal.NewFromInt(16000), item.Subtotal)
	assertDecimalEqual(t, decimal.NewFromInt(16000), persistedTotal(t, db, order.ID))
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)

	_, err = svc.AddItem(order, &fx.osh, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.AddItem(order, &fx.osh, -3, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assertDecimalEqual(t, decimal.Zero, persistedTotal(t, db, order.ID))
}

func TestFinalizeTotalRepairsDrift(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)
	_, err = svc.AddItem(order, &fx.osh, 2, nil)
	require.NoError(t, err)

	// Clobber the column behind the service's back.
	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("total_price", decimal.NewFromInt(1)).Error)

	require.NoError(t, svc.FinalizeTotal(order.ID))
	assertDecimalEqual(t, decimal.NewFromInt(20000), persistedTotal(t, db, order.ID))
}

func TestTransitionStatusForwardOnly(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)

	require.NoError(t, svc.TransitionStatus(order, models.StatusConfirmed))
	assert.Equal(t, models.StatusConfirmed, order.Status)
	assert.NotNil(t, order.ConfirmedAt)
	assert.Nil(t, order.DeliveredAt)

	var stored models.Order
	require.NoError(t, db.First(&stored, order.ID).Error)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.NotNil(t, stored.ConfirmedAt)
	assert.Nil(t, stored.DeliveredAt)

	require.NoError(t, svc.TransitionStatus(order, models.StatusDelivered))
	assert.NotNil(t, order.DeliveredAt)

	err = svc.TransitionStatus(order, models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionStatusCancelFromAnyState(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	for _, start := range []models.OrderStatus{models.StatusCreated, models.StatusConfirmed, models.StatusDelivered} {
		order, err := svc.CreateOrder(&fx.client, "")
		require.NoError(t, err)
		require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", start).Error)
		order.Status = start

		require.NoError(t, svc.TransitionStatus(order, models.StatusCanceled))
		assert.Equal(t, models.StatusCanceled, order.Status)
	}
}

func TestSubmitScenario(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.Submit(42, "eshik oldiga", []ItemRequest{
		{ProductID: fx.osh.ID, Quantity: 2},
		{ProductID: fx.somsa.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assertDecimalEqual(t, decimal.NewFromInt(25000), order.TotalPrice)
	assertDecimalEqual(t, decimal.NewFromInt(25000), persistedTotal(t, db, order.ID))

	full, err := svc.Get(order.ID)
	require.NoError(t, err)
	require.Len(t, full.Items, 2)
	byName := map[string]models.OrderItem{}
	for _, item := range full.Items {
		byName[item.Product.Name] = item
	}
	assertDecimalEqual(t, decimal.NewFromInt(20000), byName["Osh"].Subtotal)
	assertDecimalEqual(t, decimal.NewFromInt(5000), byName["Somsa"].Subtotal)
	assert.Equal(t, "Navruz", full.Shop.Name)
	assert.Equal(t, "eshik oldiga", full.Comment)
}

func TestSubmitDefaultsComment(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.Submit(42, "", []ItemRequest{{ProductID: fx.osh.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "Yo'q", order.Comment)
}

func TestSubmitSkipsNonPositiveQuantities(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	order, err := svc.Submit(42, "", []ItemRequest{
		{ProductID: fx.osh.ID, Quantity: 0},
		{ProductID: fx.somsa.ID, Quantity: 2},
		{ProductID: fx.osh.ID, Quantity: -1},
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assertDecimalEqual(t, decimal.NewFromInt(10000), persistedTotal(t, db, order.ID))
}

func TestSubmitUnknownClient(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	_, err := svc.Submit(999, "", []ItemRequest{{ProductID: fx.osh.ID, Quantity: 1}})
	assert.ErrorIs(t, err, ErrClientNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitUnknownProductLeavesNothingBehind(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	_, err := svc.Submit(42, "", []ItemRequest{
		{ProductID: fx.osh.ID, Quantity: 2},
		{ProductID: 9999, Quantity: 1},
	})
	assert.ErrorIs(t, err, ErrProductNotFound)

	var orderCount, itemCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&itemCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, itemCount)
}

func TestBulkSetStatusIsPermissive(t *testing.T) {
	db := newTestDB(t)
	fx := seed(t, db)
	svc := NewService(db)

	first, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)
	second, err := svc.CreateOrder(&fx.client, "")
	require.NoError(t, err)
	// A delivered order is still swept up by a bulk confirm.
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", second.ID).Update("status", models.StatusDelivered).Error)

	updated, err := svc.BulkSetStatus([]uint{first.ID, second.ID}, models.StatusConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	var stored models.Order
	require.NoError(t, db.First(&stored, second.ID).Error)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.NotNil(t, stored.ConfirmedAt)
}
