package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/metrics"
)

// HandleOrderCreatedCommand — команда обработки события order.created.
// Items — список SKU позиций: бизнес-правилам процессора нужны только они.
type HandleOrderCreatedCommand struct {
	OrderID string
	Items   []string
	Amount  float64
	Version int
}

// HandleOrderCreatedUseCase принимает решение по заказу и кладёт событие
// order.processed в outbox. Изменение состояния, отметка inbox и событие
// фиксируются одной транзакцией; повторная доставка того же события — no-op.
type HandleOrderCreatedUseCase struct {
	uow     domain.UnitOfWork
	random  domain.RandomSource
	logger  *log.Entry
	metrics *metrics.Pipeline
}

// NewHandleOrderCreatedUseCase создаёт use case. random=nil означает
// равномерный источник [0,1) — боевой режим.
func NewHandleOrderCreatedUseCase(uow domain.UnitOfWork, random domain.RandomSource, logger *log.Entry, pipeline *metrics.Pipeline) *HandleOrderCreatedUseCase {
	if random == nil {
		random = rand.Float64
	}
	if logger == nil {
		logger = log.WithField("component", "handle-order-created")
	}
	return &HandleOrderCreatedUseCase{uow: uow, random: random, logger: logger, metrics: pipeline}
}

// Execute применяет команду к состоянию обработки заказа.
func (uc *HandleOrderCreatedUseCase) Execute(ctx context.Context, cmd HandleOrderCreatedCommand) error {
	eventKey := domain.EventKey(domain.EventTypeOrderCreated, cmd.OrderID, cmd.Version)
	var result domain.ProcessingResult

	err := uc.uow.Do(ctx, func(ctx context.Context, scope domain.Scope) error {
		seen, err := scope.Inbox().Exists(ctx, eventKey)
		if err != nil {
			return fmt.Errorf("check inbox: %w", err)
		}
		if seen {
			result = domain.ProcessingResult{Status: domain.ResultIgnored}
			uc.metrics.RecordEventIgnored()
			return nil
		}

		state, err := scope.States().Get(ctx, cmd.OrderID)
		if err != nil {
			if !errors.Is(err, domain.ErrStateNotFound) {
				return fmt.Errorf("load processing state: %w", err)
			}
			state = domain.NewProcessingState(cmd.OrderID)
		}

		result = state.ApplyOrderCreated(cmd.Items, cmd.Amount, cmd.Version, uc.random)
		if result.Status == domain.ResultIgnored {
			// Устаревшая версия: состояние не меняем и событие не
			// порождаем, но ключ фиксируем, чтобы повторы были дешёвыми.
			return scope.Inbox().Add(ctx, eventKey)
		}

		if err := scope.States().Upsert(ctx, state); err != nil {
			return fmt.Errorf("store processing state: %w", err)
		}
		if err := scope.Inbox().Add(ctx, eventKey); err != nil {
			return fmt.Errorf("record inbox key: %w", err)
		}

		payload, err := json.Marshal(domain.OrderProcessedEvent{
			OrderID: cmd.OrderID,
			Status:  result.Status,
			Reason:  result.Reason,
			Version: cmd.Version,
		})
		if err != nil {
			return fmt.Errorf("encode order.processed event: %w", err)
		}
		return scope.Outbox().Put(ctx, domain.EventTypeOrderProcessed, payload)
	})
	if err != nil {
		return err
	}

	if result.Status != domain.ResultIgnored {
		uc.metrics.RecordOrderProcessed(string(result.Status))
		uc.logger.WithFields(log.Fields{
			"order_id": cmd.OrderID,
			"status":   result.Status,
			"version":  cmd.Version,
		}).Info("order.created handled")
	}

	return nil
}
