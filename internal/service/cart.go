package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/storage"
)

type CartService interface {
	// Snapshot читает корзину в момент оформления. Неактивные и удалённые товары пропускаются.
	Snapshot(ctx context.Context, userID int64) ([]models.CartLine, error)
	List(ctx context.Context, userID int64) ([]*models.CartItem, error)
	Add(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error)
	Update(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error)
	Remove(ctx context.Context, userID, itemID int64) error
	// Resolve превращает сохранённый у провайдера снимок обратно в позиции с актуальными товарами.
	Resolve(ctx context.Context, snapshot string) ([]models.CartLine, error)
}

type cartService struct {
	log         *slog.Logger
	cartRepo    storage.CartStorage
	productRepo storage.ProductStorage
}

func NewCartService(log *slog.Logger, cartRepo storage.CartStorage, productRepo storage.ProductStorage) CartService {
	return &cartService{
		log:         log,
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

func (s *cartService) Snapshot(ctx context.Context, userID int64) ([]models.CartLine, error) {
	const op = "service.CartService.Snapshot"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	items, err := s.cartRepo.GetCartItems(ctx, userID)
	if err != nil {
		logger.Error("failed to get cart items", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get cart items: %w", op, err)
	}

	lines := make([]models.CartLine, 0, len(items))
	for _, it := range items {
		if it.Product == nil || !it.Product.Active || it.Quantity <= 0 {
			logger.Debug("skipping unavailable cart item", slog.Int64("productID", it.ProductID))
			continue
		}
		lines = append(lines, models.CartLine{Product: it.Product, Quantity: it.Quantity})
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}
	return lines, nil
}

func (s *cartService) List(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	const op = "service.CartService.List"

	items, err := s.cartRepo.GetCartItems(ctx, userID)
	if err != nil {
		s.log.Error("failed to get cart items", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func (s *cartService) Add(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	const op = "service.CartService.Add"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID))

	if quantity <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}
	product, err := s.productRepo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrProductUnavailable)
		}
		logger.Error("failed to get product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get product: %w", op, err)
	}
	if !product.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrProductUnavailable)
	}

	item, err := s.cartRepo.AddItem(ctx, userID, productID, quantity)
	if err != nil {
		logger.Error("failed to add cart item", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to add cart item: %w", op, err)
	}
	item.Product = product
	logger.Info("cart item added", slog.Int("quantity", item.Quantity))
	return item, nil
}

func (s *cartService) Update(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error) {
	const op = "service.CartService.Update"

	if quantity <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}
	item, err := s.cartRepo.UpdateQuantity(ctx, userID, itemID, quantity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return item, nil
}

func (s *cartService) Remove(ctx context.Context, userID, itemID int64) error {
	const op = "service.CartService.Remove"

	if err := s.cartRepo.RemoveItem(ctx, userID, itemID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *cartService) Resolve(ctx context.Context, snapshot string) ([]models.CartLine, error) {
	const op = "service.CartService.Resolve"

	refs, err := DecodeSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lines := make([]models.CartLine, 0, len(refs))
	for _, ref := range refs {
		// оплата уже прошла: берём товар даже если его успели выключить
		product, err := s.productRepo.GetProductByID(ctx, ref.ProductID)
		if err != nil {
			s.log.Error("failed to resolve snapshot product",
				slog.String("op", op), slog.Int64("productID", ref.ProductID), slog.Any("error", err))
			return nil, fmt.Errorf("%s: product %d: %w", op, ref.ProductID, err)
		}
		lines = append(lines, models.CartLine{Product: product, Quantity: ref.Quantity})
	}
	return lines, nil
}

// LineRef: позиция снимка корзины без данных товара
type LineRef struct {
	ProductID int64
	Quantity  int
}

// EncodeSnapshot кодирует снимок как "productID:qty,...", отсортированный по товару.
// Формат компактный: metadata Stripe ограничена 500 символами на значение.
func EncodeSnapshot(lines []models.CartLine) string {
	parts := make([]string, 0, len(lines))
	sorted := make([]models.CartLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Product.ID < sorted[j].Product.ID })
	for _, l := range sorted {
		parts = append(parts, strconv.FormatInt(l.Product.ID, 10)+":"+strconv.Itoa(l.Quantity))
	}
	return strings.Join(parts, ",")
}

func DecodeSnapshot(s string) ([]LineRef, error) {
	if s == "" {
		return nil, ErrEmptyCart
	}
	parts := strings.Split(s, ",")
	refs := make([]LineRef, 0, len(parts))
	for _, part := range parts {
		idStr, qtyStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSnapshot, part)
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSnapshot, part)
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSnapshot, part)
		}
		refs = append(refs, LineRef{ProductID: id, Quantity: qty})
	}
	return refs, nil
}
