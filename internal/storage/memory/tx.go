package memory

import (
	"context"
	"sync"
)

type txKey struct{}

// txLog накапливает функции отката записей, сделанных внутри транзакции.
type txLog struct {
	owner *txManager
	undo  []func()
}

func (l *txLog) onRollback(fn func()) {
	l.undo = append(l.undo, fn)
}

func (l *txLog) rollback() {
	for i := len(l.undo) - 1; i >= 0; i-- {
		l.undo[i]()
	}
	l.undo = nil
}

// txManager сериализует все записи хранилища. Транзакция держит мьютекс
// до завершения, одиночная запись берёт его на время одной операции,
// поэтому откат никогда не затирает чужие изменения.
type txManager struct {
	mu sync.Mutex
}

func newTxManager() *txManager {
	return &txManager{}
}

// WithinTx выполняет fn в транзакции. Вложенный вызов присоединяется к внешней.
func (m *txManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if l, ok := ctx.Value(txKey{}).(*txLog); ok && l.owner == m {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l := &txLog{owner: m}
	if err := fn(context.WithValue(ctx, txKey{}, l)); err != nil {
		l.rollback()
		return err
	}
	return nil
}

// write выполняет мутацию: внутри активной транзакции пишет в её журнал,
// иначе выполняет мутацию как отдельную транзакцию.
func (m *txManager) write(ctx context.Context, fn func(l *txLog) error) error {
	if l, ok := ctx.Value(txKey{}).(*txLog); ok && l.owner == m {
		return fn(l)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l := &txLog{owner: m}
	if err := fn(l); err != nil {
		l.rollback()
		return err
	}
	return nil
}
