package domain

// ProcessingStatus описывает состояние обработки заказа в processor-сервисе.
type ProcessingStatus string

const (
	// ProcessingStatusReceived — состояние создано, решение ещё не принято.
	ProcessingStatusReceived ProcessingStatus = "received"
	// ProcessingStatusDone — заказ обработан успешно.
	ProcessingStatusDone ProcessingStatus = "done"
	// ProcessingStatusFailed — заказ отклонён бизнес-правилами или случайным сбоем.
	ProcessingStatusFailed ProcessingStatus = "failed"
)

// ResultStatus — статус результата обработки в событии order.processed.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultIgnored ResultStatus = "ignored"
)

// Причины отказа обработки; формулировки уходят в событие order.processed как есть.
const (
	ReasonStaleVersion  = "stale_version"
	ReasonEmbargo       = "Pineapple/teapot embargo"
	ReasonTooFattyFood  = "Too fatty food"
	ReasonRandomFailure = "Random failure"
)

// RandomSource возвращает число в [0,1); внедряется извне ради
// детерминированных тестов. nil трактуется как постоянный 0.5.
type RandomSource func() float64

// ProcessingResult — исход применения события order.created.
type ProcessingResult struct {
	Status ResultStatus
	Reason *string
}

// ProcessingState хранит последний применённый номер версии и результат
// обработки для одного заказа.
type ProcessingState struct {
	OrderID      string
	Version      int
	Status       ProcessingStatus
	AttemptCount int
	LastError    *string
}

// NewProcessingState создаёт состояние с версией 0: любое первое событие новее.
func NewProcessingState(orderID string) *ProcessingState {
	return &ProcessingState{
		OrderID: orderID,
		Status:  ProcessingStatusReceived,
	}
}

// ApplyOrderCreated применяет событие order.created к состоянию.
// Версия не новее сохранённой отбрасывается без мутаций. Иначе состояние
// переключается по бизнес-правилам: эмбарго-позиции и potato дают отказ,
// остальные заказы решает бросок random (r ≤ 0.6 — успех).
func (s *ProcessingState) ApplyOrderCreated(items []string, amount float64, version int, random RandomSource) ProcessingResult {
	if version <= s.Version {
		reason := ReasonStaleVersion
		return ProcessingResult{Status: ResultIgnored, Reason: &reason}
	}

	if random == nil {
		random = func() float64 { return 0.5 }
	}

	s.Version = version
	s.AttemptCount++

	for _, item := range items {
		if item == "pineapple_pizza" || item == "teapot" {
			return s.fail(ReasonEmbargo)
		}
	}
	for _, item := range items {
		if item == "potato" {
			return s.fail(ReasonTooFattyFood)
		}
	}

	if roll := random(); roll <= 0.6 {
		s.Status = ProcessingStatusDone
		s.LastError = nil
		return ProcessingResult{Status: ResultSuccess}
	}

	return s.fail(ReasonRandomFailure)
}

func (s *ProcessingState) fail(reason string) ProcessingResult {
	s.Status = ProcessingStatusFailed
	s.LastError = &reason
	return ProcessingResult{Status: ResultFailed, Reason: &reason}
}
