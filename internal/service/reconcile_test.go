package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckout(e *env) service.CheckoutService {
	return service.NewCheckoutService(e.log, e.cart, e.reconciler, e.orders, fakeProofStore{}, e.conv)
}

func TestCheckout_ManualExpandsUnits(t *testing.T) {
	e := newEnv(t)
	e.fillCart(steve.UserID)
	e.expectTx()

	proof := "/uploads/proof.png"
	contact := "steve#0001"
	group, err := newCheckout(e).Checkout(context.Background(), steve, service.CheckoutRequest{
		ContactHandle: &contact,
		ProofRef:      &proof,
	})
	require.NoError(t, err)
	e.checkMock(t)

	// 2×A + 1×B = три позиции pending в одной группе, сумма 250
	require.Len(t, group.Items, 3)
	for _, it := range group.Items {
		assert.Equal(t, models.StatusPending, it.Status)
		assert.Equal(t, group.ID, it.GroupID)
		assert.Equal(t, "Steve", it.PlayerID)
	}
	assert.True(t, decimal.NewFromInt(250).Equal(group.Total()))
	assert.True(t, decimal.NewFromInt(250).Equal(group.Amount))
	assert.Equal(t, models.PaymentManual, group.PaymentMethod)
	require.NotNil(t, group.ProofRef)
	assert.Equal(t, proof, *group.ProofRef)

	// Корзина очищена, выдачи не было
	items, err := e.cart.List(context.Background(), steve.UserID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, e.exec.calls())
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newEnv(t)

	_, err := newCheckout(e).Checkout(context.Background(), steve, service.CheckoutRequest{})
	assert.True(t, errors.Is(err, service.ErrEmptyCart))
	// Транзакция даже не открывалась
	e.checkMock(t)
	assert.Empty(t, e.orders.groups)
}

func TestCheckout_InactiveProductsSkipped(t *testing.T) {
	e := newEnv(t)
	inactive := &models.Product{ID: 3, Name: "Old", Price: decimal.NewFromInt(10), Active: false}
	e.products.products[inactive.ID] = inactive
	e.carts.put(steve.UserID, inactive.ID, 1)
	e.carts.put(steve.UserID, 99, 1) // товар удалён

	_, err := newCheckout(e).Checkout(context.Background(), steve, service.CheckoutRequest{})
	assert.True(t, errors.Is(err, service.ErrEmptyCart))
}

func TestCheckout_RefusesProviderMethod(t *testing.T) {
	e := newEnv(t)
	e.fillCart(steve.UserID)

	_, err := newCheckout(e).Checkout(context.Background(), steve, service.CheckoutRequest{PaymentMethod: "paypal"})
	assert.True(t, errors.Is(err, service.ErrUnsupportedPaymentMethod))

	items, _ := e.cart.List(context.Background(), steve.UserID)
	assert.Len(t, items, 2, "корзина не должна меняться")
}

func TestCheckout_CreateFailureKeepsCart(t *testing.T) {
	e := newEnv(t)
	e.fillCart(steve.UserID)
	e.orders.createErr = errBoom
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()

	_, err := newCheckout(e).Checkout(context.Background(), steve, service.CheckoutRequest{})
	assert.True(t, errors.Is(err, errBoom))
	e.checkMock(t)

	items, _ := e.cart.List(context.Background(), steve.UserID)
	assert.Len(t, items, 2)
}

func TestCheckout_AttachProofOwnGroupOnly(t *testing.T) {
	e := newEnv(t)
	e.fillCart(steve.UserID)
	e.expectTx()
	checkout := newCheckout(e)

	group, err := checkout.Checkout(context.Background(), steve, service.CheckoutRequest{})
	require.NoError(t, err)

	e.expectTx()
	updated, err := checkout.AttachProof(context.Background(), steve, group.ID, "/uploads/late.png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/late.png", *updated.ProofRef)

	alex := &models.Player{UserID: 8, PlayerID: "Alex"}
	_, err = checkout.AttachProof(context.Background(), alex, group.ID, "/uploads/x.png")
	assert.True(t, errors.Is(err, service.ErrOrderNotFound))
	e.checkMock(t)
}

// placeManual создаёт pending-группу напрямую через Reconciler
func placeManual(t *testing.T, e *env) *models.OrderGroup {
	t.Helper()
	e.fillCart(steve.UserID)
	e.expectTx()
	group, err := newCheckout(e).Checkout(context.Background(), steve, service.CheckoutRequest{})
	require.NoError(t, err)
	return group
}

func TestApproveItem_OnlyOnce(t *testing.T) {
	e := newEnv(t)
	group := placeManual(t, e)
	itemID := group.Items[0].ID

	item, out, err := e.reconciler.ApproveItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, item.Status)
	assert.Equal(t, "give Steve diamond 1", out.Command)
	require.NotNil(t, out.Result)
	assert.Equal(t, "ok", *out.Result)

	_, _, err = e.reconciler.ApproveItem(context.Background(), itemID)
	assert.True(t, errors.Is(err, service.ErrAlreadyApproved))
	assert.Equal(t, 1, e.exec.calls(), "повторное одобрение не должно выдавать второй раз")

	stored := e.orders.item(itemID)
	assert.Equal(t, models.DeliveryDelivered, stored.Delivery())
}

func TestRejectItem(t *testing.T) {
	e := newEnv(t)
	group := placeManual(t, e)
	itemID := group.Items[1].ID

	item, err := e.reconciler.RejectItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, item.Status)

	_, _, err = e.reconciler.ApproveItem(context.Background(), itemID)
	assert.True(t, errors.Is(err, service.ErrAlreadyRejected))
	_, err = e.reconciler.RejectItem(context.Background(), itemID)
	assert.True(t, errors.Is(err, service.ErrAlreadyRejected))
	assert.Equal(t, 0, e.exec.calls())

	// Остальные позиции группы не задеты
	assert.Equal(t, models.StatusPending, e.orders.item(group.Items[0].ID).Status)
}

func TestApproveItem_NotFound(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.reconciler.ApproveItem(context.Background(), 404)
	assert.True(t, errors.Is(err, service.ErrOrderNotFound))
}

func TestApproveItem_FulfillmentFailureKeepsApproved(t *testing.T) {
	e := newEnv(t)
	group := placeManual(t, e)
	e.exec.err = errors.New("connection refused")

	item, out, err := e.reconciler.ApproveItem(context.Background(), group.Items[0].ID)
	require.NoError(t, err, "сбой выдачи не является ошибкой одобрения")
	assert.Equal(t, models.StatusApproved, item.Status)
	assert.True(t, errors.Is(out.Err, service.ErrFulfillment))
	assert.Nil(t, out.Result)

	stored := e.orders.item(item.ID)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Nil(t, stored.CommandResult)
	require.NotNil(t, stored.CommandError)
	assert.True(t, strings.Contains(*stored.CommandError, "connection refused"))
	assert.Equal(t, models.DeliveryFailed, stored.Delivery())
}

func TestApproveGroup_FailureIsolatedPerItem(t *testing.T) {
	e := newEnv(t)
	group := placeManual(t, e)
	// товар B без команды: выдавать нечего
	e.products.products[productB.ID] = &models.Product{ID: productB.ID, Name: "VIP", Price: productB.Price, Active: true}

	outcomes, err := e.reconciler.ApproveGroup(context.Background(), group)
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)
	assert.Equal(t, 2, e.exec.calls())
	for _, it := range group.Items {
		assert.Equal(t, models.StatusApproved, e.orders.item(it.ID).Status)
	}

	// Повторный прогон ничего не выдаёт
	outcomes, err = e.reconciler.ApproveGroup(context.Background(), group)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, 2, e.exec.calls())
}

func TestRenderCommand(t *testing.T) {
	assert.Equal(t, "give Steve diamond 1", service.RenderCommand("give {playerid} diamond 1", "Steve"))
	assert.Equal(t, "tp Steve Steve", service.RenderCommand("tp {playerid} {playerid}", "Steve"))
	assert.Equal(t, "say hi {player}", service.RenderCommand("say hi {player}", "Steve"))
}

func TestSnapshotEncoding(t *testing.T) {
	lines := []models.CartLine{{Product: productB, Quantity: 1}, {Product: productA, Quantity: 2}}
	encoded := service.EncodeSnapshot(lines)
	assert.Equal(t, "1:2,2:1", encoded)

	refs, err := service.DecodeSnapshot(encoded)
	require.NoError(t, err)
	assert.Equal(t, []service.LineRef{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}, refs)

	_, err = service.DecodeSnapshot("1:0")
	assert.True(t, errors.Is(err, service.ErrInvalidSnapshot))
	_, err = service.DecodeSnapshot("abc")
	assert.True(t, errors.Is(err, service.ErrInvalidSnapshot))
	_, err = service.DecodeSnapshot("")
	assert.True(t, errors.Is(err, service.ErrEmptyCart))
}
