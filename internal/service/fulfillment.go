package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/storage"
)

// ErrFulfillment: команда не дошла до игрового сервера. Статус позиции при этом не откатывается.
var ErrFulfillment = errors.New("fulfillment failed")

// CommandExecutor: удалённый канал команд игрового сервера (RCON)
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// FulfillmentOutcome: итог одной попытки выдачи
type FulfillmentOutcome struct {
	ItemID  int64   `json:"itemId"`
	Command string  `json:"-"`
	Result  *string `json:"rconResult"`
	Err     error   `json:"-"`
}

// RenderCommand подставляет игрока вместо каждого {playerid}; другой шаблонизации нет
func RenderCommand(template, playerID string) string {
	return strings.ReplaceAll(template, models.PlayerIDPlaceholder, playerID)
}

// Fulfiller выполняет команду товара ровно один раз на каждую одобренную позицию.
// Однократность обеспечивает условный переход pending -> approved, а не сам Fulfiller.
type Fulfiller struct {
	log         *slog.Logger
	exec        CommandExecutor
	orderRepo   storage.OrderStorage
	productRepo storage.ProductStorage
	timeout     time.Duration
}

func NewFulfiller(log *slog.Logger, exec CommandExecutor, orderRepo storage.OrderStorage, productRepo storage.ProductStorage, timeout time.Duration) *Fulfiller {
	return &Fulfiller{
		log:         log,
		exec:        exec,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		timeout:     timeout,
	}
}

// Fulfill отправляет команду для уже одобренной позиции и сохраняет ответ или ошибку.
// Ошибка выдачи возвращается в outcome, а не наверх: заказ оплачен и остаётся approved.
func (f *Fulfiller) Fulfill(ctx context.Context, item *models.OrderLineItem) FulfillmentOutcome {
	const op = "service.Fulfiller.Fulfill"
	logger := f.log.With(slog.String("op", op), slog.Int64("itemID", item.ID), slog.String("playerID", item.PlayerID))

	out := FulfillmentOutcome{ItemID: item.ID}

	product, err := f.productRepo.GetProductByID(ctx, item.ProductID)
	if err != nil {
		logger.Error("failed to load product for fulfillment", slog.Int64("productID", item.ProductID), slog.Any("error", err))
		out.Err = fmt.Errorf("%w: load product: %w", ErrFulfillment, err)
		f.record(ctx, logger, item, nil, out.Err)
		return out
	}
	if strings.TrimSpace(product.Command) == "" {
		logger.Info("product has no command, nothing to deliver", slog.Int64("productID", product.ID))
		return out
	}

	out.Command = RenderCommand(product.Command, item.PlayerID)

	execCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.exec.Execute(execCtx, out.Command)
	if err != nil {
		logger.Error("command delivery failed", slog.String("command", out.Command), slog.Any("error", err))
		out.Err = fmt.Errorf("%w: %w", ErrFulfillment, err)
		f.record(ctx, logger, item, nil, out.Err)
		return out
	}

	// пустой ответ является нормальным исходом для многих команд, сохраняем как null
	if resp != "" {
		out.Result = &resp
	}
	logger.Info("command delivered", slog.String("command", out.Command), slog.String("response", resp))
	f.record(ctx, logger, item, out.Result, nil)
	return out
}

// record пишет итог даже если запрос клиента уже отменён и отражает его в item
func (f *Fulfiller) record(ctx context.Context, logger *slog.Logger, item *models.OrderLineItem, result *string, cmdErr error) {
	var errText *string
	if cmdErr != nil {
		s := cmdErr.Error()
		errText = &s
	}
	now := time.Now()
	item.CommandResult, item.CommandError, item.CommandAttemptedAt = result, errText, &now
	if err := f.orderRepo.RecordCommandResult(context.WithoutCancel(ctx), item.ID, result, errText); err != nil {
		logger.Error("failed to record command result", slog.Any("error", err))
	}
}
