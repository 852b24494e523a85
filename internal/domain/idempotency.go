package domain

import (
	"net/http"
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: заказ оформлен, ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: запрос отклонён с 4xx, ответ тоже сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord хранит результат оформления заказа под ключом Idempotency-Key.
// Key уже включает клиента, см. ScopeIdempotencyKey.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScopeIdempotencyKey привязывает ключ к клиенту, чтобы одинаковые ключи
// разных покупателей не пересекались.
func ScopeIdempotencyKey(customerID, key string) string {
	return strings.TrimSpace(customerID) + ":" + strings.TrimSpace(key)
}

// Expired сообщает, что срок хранения ключа истёк к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Replayable сообщает, что у ключа есть готовый ответ для повтора.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Clone возвращает копию записи с независимым телом ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	r.ResponseBody = append([]byte(nil), r.ResponseBody...)
	return r
}

// ReplayStatus возвращает сохранённый HTTP-код, 200 если он не записан.
func (r IdempotencyRecord) ReplayStatus() int {
	if r.HTTPStatus == 0 {
		return http.StatusOK
	}
	return r.HTTPStatus
}
