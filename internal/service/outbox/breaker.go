package outbox

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrCircuitOpen возвращается, пока брокер считается недоступным.
// Worker не тратит на такие сообщения попытки и не отправляет их в DLQ.
var ErrCircuitOpen = errors.New("outbox publisher circuit is open")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerPublisher размыкает цепь после maxFailures подряд ошибок публикации
// и через resetTimeout пропускает одну пробную попытку.
type BreakerPublisher struct {
	next         domain.OutboxPublisher
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	now          func() time.Time

	mu       sync.Mutex
	state    circuitState
	failures int
	openedAt time.Time
}

// NewBreakerPublisher оборачивает publisher. maxFailures <= 0 означает 5.
func NewBreakerPublisher(next domain.OutboxPublisher, maxFailures int, resetTimeout time.Duration, logger *log.Entry) *BreakerPublisher {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.WithField("component", "outbox-breaker")
	}
	return &BreakerPublisher{
		next:         next,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Publish передаёт событие дальше, если цепь замкнута или полуоткрыта.
func (b *BreakerPublisher) Publish(msg domain.OutboxMessage) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := b.next.Publish(msg)
	b.record(err)
	return err
}

func (b *BreakerPublisher) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false
		}
		b.setState(circuitHalfOpen)
		return true
	case circuitHalfOpen:
		// Пробная попытка уже идёт.
		return false
	default:
		return true
	}
}

func (b *BreakerPublisher) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != circuitClosed {
			b.setState(circuitClosed)
		}
		return
	}

	b.failures++
	if b.state == circuitHalfOpen || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		if b.state != circuitOpen {
			b.setState(circuitOpen)
		}
		b.logger.WithError(err).WithField("failures", b.failures).Warn("outbox publisher circuit opened")
	}
}

func (b *BreakerPublisher) setState(s circuitState) {
	b.logger.WithFields(log.Fields{"from": b.state.String(), "to": s.String()}).Info("outbox publisher circuit state changed")
	b.state = s
}

var _ domain.OutboxPublisher = (*BreakerPublisher)(nil)
