package composer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchGroup схлопывает одинаковые запросы к каталогу из разных сессий.
// Запрос живёт, пока его ждёт хотя бы один поиск: когда последний ожидающий
// вытеснен или отменён, запрос отменяется и забывается группой.
type FetchGroup struct {
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewFetchGroup создаёт пустую группу.
func NewFetchGroup() *FetchGroup {
	return &FetchGroup{flights: make(map[string]*flight)}
}

type fetchFunc func(ctx context.Context) (interface{}, error)

// join присоединяет ожидающего к запросу по ключу, запуская его при необходимости.
// Новый запрос наследует значения parent, но не его отмену. leave вызывается,
// когда ожидающий уходит; повторные вызовы ничего не делают.
func (g *FetchGroup) join(parent context.Context, key string, timeout time.Duration, fetch fetchFunc) (<-chan singleflight.Result, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.flights[key]
	if !ok {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
		f = &flight{ctx: ctx, cancel: cancel}
		g.flights[key] = f
	}
	f.waiters++
	// flights[key] и вызов в singleflight появляются и исчезают вместе под g.mu.
	ch := g.group.DoChan(key, func() (interface{}, error) {
		defer g.land(key, f)
		return fetch(f.ctx)
	})
	return ch, g.leaveFunc(key, f)
}

func (g *FetchGroup) leaveFunc(key string, f *flight) func() {
	var once sync.Once
	return func() {
		once.Do(func() { g.leave(key, f) })
	}
}

func (g *FetchGroup) leave(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	g.forget(key, f)
}

// land снимает завершившийся запрос, пока группа ещё держит его вызов.
func (g *FetchGroup) land(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forget(key, f)
}

// forget вызывается под g.mu.
func (g *FetchGroup) forget(key string, f *flight) {
	if g.flights[key] == f {
		delete(g.flights, key)
		g.group.Forget(key)
	}
	f.cancel()
}

// inflight возвращает число незавершённых запросов.
func (g *FetchGroup) inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flights)
}
