package exchange

import "sync"

// UnitOfWork collects hooks that must run once the exchange is fully handled.
type UnitOfWork struct {
	mu    sync.Mutex
	hooks []func(ex *Exchange)
	done  bool
}

// OnCompletion registers a hook. It returns false when the unit of work has
// already completed, in which case the hook is not registered.
func (u *UnitOfWork) OnCompletion(fn func(ex *Exchange)) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return false
	}
	u.hooks = append(u.hooks, fn)
	return true
}

// IsDone reports whether Done already ran
func (u *UnitOfWork) IsDone() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.done
}

// done runs hooks in reverse registration order, once.
func (u *UnitOfWork) complete(ex *Exchange) {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return
	}
	u.done = true
	hooks := u.hooks
	u.hooks = nil
	u.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ex)
	}
}
