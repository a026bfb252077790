package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	groupCols = []string{"id", "user_id", "player_id", "contact_handle", "payment_method", "external_ref", "currency", "amount", "proof_ref", "created_at"}
	itemCols  = []string{"id", "group_id", "user_id", "player_id", "product_id", "name", "unit_price", "status", "approved_at", "command_result", "command_error", "command_attempted_at", "created_at"}
)

func TestGetProductByID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "price", "command", "image", "active", "stock", "description"}).
		AddRow(1, "VIP", "100.00", "lp user {playerid} parent add vip", "", true, 10, "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1")).WithArgs(1).WillReturnRows(rows)

	p, err := repo.GetProductByID(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, "VIP", p.Name)
	assert.True(t, decimal.NewFromInt(100).Equal(p.Price))
	assert.Equal(t, "lp user {playerid} parent add vip", p.Command)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1")).WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	p, err := repo.GetProductByID(context.Background(), 42)
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))
	assert.Nil(t, p)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCartItems_WithMissingProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)

	// Вторая строка ссылается на удалённый товар, LEFT JOIN вернёт NULL
	rows := sqlmock.NewRows([]string{"id", "user_id", "product_id", "quantity",
		"p_id", "name", "price", "command", "image", "active", "stock", "description"}).
		AddRow(1, 7, 1, 2, 1, "A", "100.00", "give {playerid} a", "", true, 5, "").
		AddRow(2, 7, 9, 1, nil, nil, nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).WithArgs(7).WillReturnRows(rows)

	items, err := repo.GetCartItems(context.Background(), 7)
	assert.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Quantity)
	require.NotNil(t, items[0].Product)
	assert.True(t, decimal.NewFromInt(100).Equal(items[0].Product.Price))
	assert.Nil(t, items[1].Product)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearCart(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart_items WHERE user_id = $1")).WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 3))
	assert.NoError(t, repo.ClearCart(context.Background(), tx, 7))

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveLines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	// 1: 2×A, 2: 1×B, 3: 5×B (добавлено после оплаты), 4: 3×A
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY id FOR UPDATE")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "quantity"}).
			AddRow(1, 1, 2).
			AddRow(2, 2, 1).
			AddRow(3, 2, 5).
			AddRow(4, 1, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart_items WHERE id = $1")).WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart_items WHERE id = $1")).WithArgs(2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_items SET quantity = quantity - $1 WHERE id = $2")).WithArgs(1, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	lines := []models.CartLine{
		{Product: &models.Product{ID: 1}, Quantity: 3},
		{Product: &models.Product{ID: 2}, Quantity: 1},
	}
	assert.NoError(t, repo.RemoveLines(context.Background(), tx, 7, lines))

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveCartItem_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart_items WHERE id = $1 AND user_id = $2")).WithArgs(5, 7).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.RemoveItem(context.Background(), 7, 5)
	assert.True(t, errors.Is(err, storage.ErrCartItemNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 2×A + 1×B должны превратиться ровно в 3 позиции pending с общим id группы
func TestCreateGroup_ExpandsQuantities(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	ctx := context.Background()
	now := time.Now()

	productA := &models.Product{ID: 1, Name: "A", Price: decimal.NewFromInt(100)}
	productB := &models.Product{ID: 2, Name: "B", Price: decimal.NewFromInt(50)}
	lines := []models.CartLine{{Product: productA, Quantity: 2}, {Product: productB, Quantity: 1}}

	group := &models.OrderGroup{
		ID:            "0b6f7a7e-5a57-4b43-9b38-3f0c7d7a1e01",
		UserID:        7,
		PlayerID:      "steve",
		PaymentMethod: models.PaymentManual,
		Currency:      "TWD",
		Amount:        decimal.NewFromInt(250),
	}

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_groups")).
		WithArgs(group.ID, 7, "steve", nil, "manual", nil, "TWD", sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	for i, productID := range []int64{1, 1, 2} {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
			WithArgs(group.ID, 7, "steve", productID, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(i+1), now))
	}

	created, err := repo.CreateGroup(ctx, tx, group, lines)
	require.NoError(t, err)
	require.Len(t, created.Items, 3)
	for _, it := range created.Items {
		assert.Equal(t, group.ID, it.GroupID)
		assert.Equal(t, models.StatusPending, it.Status)
		assert.Equal(t, "steve", it.PlayerID)
	}
	assert.True(t, decimal.NewFromInt(250).Equal(created.Total()))

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroup_DuplicateExternalRef(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	ref := "PAYPAL-1"
	group := &models.OrderGroup{ID: "g-1", UserID: 7, PlayerID: "steve", PaymentMethod: models.PaymentPayPal, ExternalRef: &ref, Currency: "USD"}

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_groups")).
		WillReturnError(&pq.Error{Code: "23505"})

	created, err := repo.CreateGroup(context.Background(), tx, group, nil)
	assert.True(t, errors.Is(err, storage.ErrDuplicateExternalRef))
	assert.Nil(t, created)

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachProof_GroupNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE order_groups SET proof_ref = $1 WHERE id = $2")).
		WithArgs("/uploads/a.png", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.AttachProof(context.Background(), tx, "missing", "/uploads/a.png")
	assert.True(t, errors.Is(err, storage.ErrGroupNotFound))

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindGroupByExternalRef_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM order_groups WHERE payment_method = $1 AND external_ref = $2")).
		WithArgs("ecpay_atm", "RS0001").
		WillReturnRows(sqlmock.NewRows(groupCols).
			AddRow("g-1", 7, "steve", nil, "ecpay_atm", "RS0001", "TWD", "150", nil, now))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE oi.group_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(1, "g-1", 7, "steve", 1, "A", "100", "pending", nil, nil, nil, nil, now).
			AddRow(2, "g-1", 7, "steve", 2, "B", "50", "pending", nil, nil, nil, nil, now))

	g, err := repo.FindGroupByExternalRef(context.Background(), models.PaymentECPayATM, "RS0001")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentECPayATM, g.PaymentMethod)
	require.NotNil(t, g.ExternalRef)
	assert.Equal(t, "RS0001", *g.ExternalRef)
	assert.Nil(t, g.ContactHandle)
	require.Len(t, g.Items, 2)
	assert.Equal(t, "B", g.Items[1].ProductName)
	assert.Nil(t, g.Items[0].CommandResult)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindGroupByExternalRef_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM order_groups WHERE payment_method = $1")).
		WithArgs("ecpay_cvs", "nope").
		WillReturnRows(sqlmock.NewRows(groupCols))

	g, err := repo.FindGroupByExternalRef(context.Background(), models.PaymentECPayCVS, "nope")
	assert.True(t, errors.Is(err, storage.ErrGroupNotFound))
	assert.Nil(t, g)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGroup_MalformedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	// до БД запрос не доходит
	g, err := repo.GetGroup(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, storage.ErrGroupNotFound))
	assert.Nil(t, g)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveItem_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE order_items SET status = 'approved', approved_at = NOW()")).
		WithArgs(11).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(11, "g-1", 7, "steve", 1, "A", "100", "approved", now, nil, nil, nil, now))

	it, err := repo.ApproveItem(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, it.Status)
	require.NotNil(t, it.ApprovedAt)
	assert.Equal(t, models.DeliveryNotAttempted, it.Delivery())

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Условная запись не нашла строку в pending: переход уже выполнен кем-то другим
func TestApproveItem_NotPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs(11).
		WillReturnRows(sqlmock.NewRows(itemCols))

	it, err := repo.ApproveItem(context.Background(), 11)
	assert.True(t, errors.Is(err, storage.ErrItemNotPending))
	assert.Nil(t, it)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectItem_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE order_items SET status = 'rejected'")).
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(12, "g-1", 7, "steve", 1, "A", "100", "rejected", nil, nil, nil, nil, now))

	it, err := repo.RejectItem(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, it.Status)
	assert.Nil(t, it.ApprovedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCommandResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	errText := "dial tcp: connection refused"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE order_items SET command_result = $1, command_error = $2")).
		WithArgs(nil, errText, 11).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.RecordCommandResult(context.Background(), 11, nil, &errText))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDiskProofStore_Save(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewDiskProofStore(dir, "/uploads/")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "receipt.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestReplayGuard(t *testing.T) {
	var guard storage.ReplayGuard = storage.NopReplayGuard{}
	first, err := guard.FirstSeen(context.Background(), "k")
	assert.NoError(t, err)
	assert.True(t, first)

	assert.Equal(t, "rcon_shop:ecpay:callback:RS0001:2401011234567890", storage.ECPayCallbackKey("RS0001", "2401011234567890"))
}

func TestRedisReplayGuard_Unavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	guard := storage.NewRedisReplayGuard(rdb, time.Minute)
	first, err := guard.FirstSeen(context.Background(), "k")
	assert.Error(t, err, "caller falls back to the database on redis errors")
	assert.False(t, first)
}
