package service_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/linemk/rcon-shop/internal/config"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/service"
	"github.com/linemk/rcon-shop/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeProductRepo struct {
	products map[int64]*models.Product
}

var _ storage.ProductStorage = (*fakeProductRepo)(nil)

func newFakeProductRepo(products ...*models.Product) *fakeProductRepo {
	f := &fakeProductRepo{products: make(map[int64]*models.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProductRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeProductRepo) ListActiveProducts(ctx context.Context) ([]*models.Product, error) {
	var out []*models.Product
	for _, p := range f.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCartRepo struct {
	products *fakeProductRepo
	items    map[int64][]*models.CartItem // ключ: userID
	nextID   int64
}

var _ storage.CartStorage = (*fakeCartRepo)(nil)

func newFakeCartRepo(products *fakeProductRepo) *fakeCartRepo {
	return &fakeCartRepo{products: products, items: make(map[int64][]*models.CartItem)}
}

func (f *fakeCartRepo) put(userID, productID int64, qty int) {
	f.nextID++
	f.items[userID] = append(f.items[userID], &models.CartItem{ID: f.nextID, UserID: userID, ProductID: productID, Quantity: qty})
}

func (f *fakeCartRepo) GetCartItems(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	out := make([]*models.CartItem, 0, len(f.items[userID]))
	for _, it := range f.items[userID] {
		c := *it
		c.Product = f.products.products[it.ProductID]
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeCartRepo) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	f.put(userID, productID, quantity)
	items := f.items[userID]
	return items[len(items)-1], nil
}

func (f *fakeCartRepo) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error) {
	for _, it := range f.items[userID] {
		if it.ID == itemID {
			it.Quantity = quantity
			return it, nil
		}
	}
	return nil, storage.ErrCartItemNotFound
}

func (f *fakeCartRepo) RemoveItem(ctx context.Context, userID, itemID int64) error {
	items := f.items[userID]
	for i, it := range items {
		if it.ID == itemID {
			f.items[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return storage.ErrCartItemNotFound
}

func (f *fakeCartRepo) ClearCart(ctx context.Context, tx *sql.Tx, userID int64) error {
	delete(f.items, userID)
	return nil
}

func (f *fakeCartRepo) RemoveLines(ctx context.Context, tx *sql.Tx, userID int64, lines []models.CartLine) error {
	remaining := make(map[int64]int)
	for _, l := range lines {
		remaining[l.Product.ID] += l.Quantity
	}
	kept := f.items[userID][:0]
	for _, it := range f.items[userID] {
		take := min(it.Quantity, remaining[it.ProductID])
		remaining[it.ProductID] -= take
		it.Quantity -= take
		if it.Quantity > 0 {
			kept = append(kept, it)
		}
	}
	f.items[userID] = kept
	return nil
}

// fakeOrderRepo повторяет гарантии БД: уникальность external_ref и условный переход из pending
type fakeOrderRepo struct {
	mu        sync.Mutex
	groups    map[string]*models.OrderGroup
	items     map[int64]*models.OrderLineItem
	nextID    int64
	createErr error
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{groups: make(map[string]*models.OrderGroup), items: make(map[int64]*models.OrderLineItem)}
}

func (f *fakeOrderRepo) CreateGroup(ctx context.Context, tx *sql.Tx, group *models.OrderGroup, lines []models.CartLine) (*models.OrderGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if group.ExternalRef != nil {
		for _, g := range f.groups {
			if g.PaymentMethod == group.PaymentMethod && g.ExternalRef != nil && *g.ExternalRef == *group.ExternalRef {
				return nil, storage.ErrDuplicateExternalRef
			}
		}
	}
	group.CreatedAt = time.Now()
	group.Items = nil
	for _, l := range lines {
		for i := 0; i < l.Quantity; i++ {
			f.nextID++
			it := &models.OrderLineItem{
				ID: f.nextID, GroupID: group.ID, UserID: group.UserID, PlayerID: group.PlayerID,
				ProductID: l.Product.ID, ProductName: l.Product.Name, UnitPrice: l.Product.Price,
				Status: models.StatusPending, CreatedAt: group.CreatedAt,
			}
			f.items[it.ID] = it
			group.Items = append(group.Items, it)
		}
	}
	f.groups[group.ID] = group
	return group, nil
}

func (f *fakeOrderRepo) AttachProof(ctx context.Context, tx *sql.Tx, groupID string, proofRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return storage.ErrGroupNotFound
	}
	g.ProofRef = &proofRef
	return nil
}

// copyGroup отдаёт снимок, как это сделал бы SELECT
func (f *fakeOrderRepo) copyGroup(g *models.OrderGroup) *models.OrderGroup {
	c := *g
	c.Items = make([]*models.OrderLineItem, 0, len(g.Items))
	for _, it := range g.Items {
		ic := *f.items[it.ID]
		c.Items = append(c.Items, &ic)
	}
	return &c
}

func (f *fakeOrderRepo) GetGroup(ctx context.Context, groupID string) (*models.OrderGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil, storage.ErrGroupNotFound
	}
	return f.copyGroup(g), nil
}

func (f *fakeOrderRepo) FindGroupByExternalRef(ctx context.Context, method models.PaymentMethod, externalRef string) (*models.OrderGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.PaymentMethod == method && g.ExternalRef != nil && *g.ExternalRef == externalRef {
			return f.copyGroup(g), nil
		}
	}
	return nil, storage.ErrGroupNotFound
}

func (f *fakeOrderRepo) ListGroupsByUser(ctx context.Context, userID int64) ([]*models.OrderGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OrderGroup
	for _, g := range f.groups {
		if g.UserID == userID {
			out = append(out, f.copyGroup(g))
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) ListGroups(ctx context.Context) ([]*models.OrderGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OrderGroup
	for _, g := range f.groups {
		out = append(out, f.copyGroup(g))
	}
	return out, nil
}

func (f *fakeOrderRepo) GetItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[itemID]
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	c := *it
	return &c, nil
}

func (f *fakeOrderRepo) transition(itemID int64, to models.ItemStatus) (*models.OrderLineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[itemID]
	if !ok || it.Status != models.StatusPending {
		return nil, storage.ErrItemNotPending
	}
	it.Status = to
	if to == models.StatusApproved {
		now := time.Now()
		it.ApprovedAt = &now
	}
	c := *it
	return &c, nil
}

func (f *fakeOrderRepo) ApproveItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error) {
	return f.transition(itemID, models.StatusApproved)
}

func (f *fakeOrderRepo) RejectItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error) {
	return f.transition(itemID, models.StatusRejected)
}

func (f *fakeOrderRepo) RecordCommandResult(ctx context.Context, itemID int64, result *string, cmdErr *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[itemID]
	if !ok {
		return storage.ErrItemNotFound
	}
	now := time.Now()
	it.CommandResult, it.CommandError, it.CommandAttemptedAt = result, cmdErr, &now
	return nil
}

func (f *fakeOrderRepo) item(id int64) *models.OrderLineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

// fakeExecutor записывает отправленные команды
type fakeExecutor struct {
	mu       sync.Mutex
	commands []string
	resp     string
	err      error
}

var _ service.CommandExecutor = (*fakeExecutor)(nil)

func (f *fakeExecutor) Execute(ctx context.Context, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if f.err != nil {
		return "", f.err
	}
	return f.resp, nil
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

type fakeReplayGuard struct {
	seen map[string]bool
	err  error
}

var _ storage.ReplayGuard = (*fakeReplayGuard)(nil)

func (f *fakeReplayGuard) FirstSeen(ctx context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeReplayGuard) Forget(ctx context.Context, key string) error {
	delete(f.seen, key)
	return nil
}

type fakeProofStore struct{}

var _ storage.ProofStore = fakeProofStore{}

func (fakeProofStore) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "/uploads/" + originalName, nil
}

var (
	productA = &models.Product{ID: 1, Name: "Diamond", Price: decimal.NewFromInt(100), Command: "give {playerid} diamond 1", Active: true}
	productB = &models.Product{ID: 2, Name: "VIP", Price: decimal.NewFromInt(50), Command: "lp user {playerid} parent add vip", Active: true}
	steve    = &models.Player{UserID: 7, PlayerID: "Steve"}
)

// env собирает сервисы на фейках; БД нужна только ради BeginTx/Commit
type env struct {
	db         *sql.DB
	mock       sqlmock.Sqlmock
	log        *slog.Logger
	products   *fakeProductRepo
	carts      *fakeCartRepo
	orders     *fakeOrderRepo
	exec       *fakeExecutor
	conv       *currency.Converter
	cart       service.CartService
	reconciler *service.Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	products := newFakeProductRepo(productA, productB)
	carts := newFakeCartRepo(products)
	orders := newFakeOrderRepo()
	exec := &fakeExecutor{resp: "ok"}
	conv := currency.NewConverter(config.CurrencyConfig{
		Base:          "TWD",
		Rates:         map[string]float64{"USD": 0.03, "HKD": 0.2},
		StripeMinimum: map[string]float64{"TWD": 20},
	})

	fulfiller := service.NewFulfiller(logger, exec, orders, products, time.Second)
	return &env{
		db:         db,
		mock:       mock,
		log:        logger,
		products:   products,
		carts:      carts,
		orders:     orders,
		exec:       exec,
		conv:       conv,
		cart:       service.NewCartService(logger, carts, products),
		reconciler: service.NewReconciler(logger, db, orders, carts, fulfiller),
	}
}

// fillCart кладёт 2×A (100) и 1×B (50)
func (e *env) fillCart(userID int64) {
	e.carts.put(userID, productA.ID, 2)
	e.carts.put(userID, productB.ID, 1)
}

func (e *env) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func (e *env) checkMock(t *testing.T) {
	t.Helper()
	require.NoError(t, e.mock.ExpectationsWereMet())
}

var errBoom = errors.New("boom")
