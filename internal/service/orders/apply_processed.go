package orders

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/metrics"
)

// ApplyProcessedCommand — команда применения события order.processed к заказу.
type ApplyProcessedCommand struct {
	OrderID string
	Status  domain.ResultStatus
	Reason  *string
	Version int
}

// ApplyProcessedUseCase переводит заказ в терминальный статус по результату
// обработки. Дедупликация через inbox и проверка версии делают повторные
// доставки события безопасными no-op.
type ApplyProcessedUseCase struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.Pipeline
}

// NewApplyProcessedUseCase создаёт use case поверх unit of work.
func NewApplyProcessedUseCase(uow domain.UnitOfWork, logger *log.Entry, pipeline *metrics.Pipeline) *ApplyProcessedUseCase {
	if logger == nil {
		logger = log.WithField("component", "apply-processed")
	}
	return &ApplyProcessedUseCase{uow: uow, logger: logger, metrics: pipeline}
}

// Execute применяет команду. Возвращает nil и для применённого события,
// и для любого безопасного отбрасывания (дубль, неизвестный заказ,
// устаревшая версия).
func (uc *ApplyProcessedUseCase) Execute(ctx context.Context, cmd ApplyProcessedCommand) error {
	eventKey := domain.EventKey(domain.EventTypeOrderProcessed, cmd.OrderID, cmd.Version)
	applied := false

	err := uc.uow.Do(ctx, func(ctx context.Context, scope domain.Scope) error {
		seen, err := scope.Inbox().Exists(ctx, eventKey)
		if err != nil {
			return fmt.Errorf("check inbox: %w", err)
		}
		if seen {
			uc.metrics.RecordEventIgnored()
			return nil
		}

		order, err := scope.Orders().Get(ctx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				// Заказ этому сервису не принадлежал; ключ не фиксируем,
				// повторная доставка останется дешёвым no-op.
				uc.logger.WithField("order_id", cmd.OrderID).Warn("order.processed for unknown order dropped")
				return nil
			}
			return fmt.Errorf("load order: %w", err)
		}

		if err := order.ApplyProcessed(cmd.Status, cmd.Version, cmd.Reason); err != nil {
			if domain.IsStaleVersion(err) {
				uc.metrics.RecordEventIgnored()
				uc.logger.WithFields(log.Fields{
					"order_id": cmd.OrderID,
					"version":  cmd.Version,
				}).Debug("stale order.processed dropped")
				return nil
			}
			return err
		}

		if err := scope.Orders().Put(ctx, order); err != nil {
			return fmt.Errorf("store order: %w", err)
		}
		if err := scope.Inbox().Add(ctx, eventKey); err != nil {
			return fmt.Errorf("record inbox key: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return err
	}

	if applied {
		uc.metrics.RecordEventApplied(string(cmd.Status))
		uc.logger.WithFields(log.Fields{
			"order_id": cmd.OrderID,
			"status":   cmd.Status,
			"version":  cmd.Version,
		}).Info("order.processed applied")
	}

	return nil
}
