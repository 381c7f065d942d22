package token

import (
	"context"
	"sync"
)

// signal es un "en curso" con cola de espera: mientras está activo, Wait
// bloquea hasta que termine.
type signal struct {
	mu   sync.Mutex
	done chan struct{}
}

func (s *signal) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return false
	}
	s.done = make(chan struct{})
	return true
}

func (s *signal) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

func (s *signal) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *signal) wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.done
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gate es el latch "refresh en curso" de un tipo de token. No encola: quien
// no lo obtiene simplemente no refresca.
type Gate struct{ s signal }

// TryAcquire toma el gate si está libre.
func (g *Gate) TryAcquire() bool { return g.s.start() }

// Release libera el gate y despierta a los que esperan.
func (g *Gate) Release() { g.s.finish() }

// Held reporta si hay un refresh en curso.
func (g *Gate) Held() bool { return g.s.active() }

// Wait bloquea hasta que no haya refresh en curso (o ctx termine).
func (g *Gate) Wait(ctx context.Context) error { return g.s.wait(ctx) }

// Latch es la señal de un ciclo de auth loading (re-autenticación completa).
type Latch struct{ s signal }

// Begin inicia un ciclo. Si ya hay uno activo devuelve ok=false y un end
// que no hace nada. end es idempotente.
func (l *Latch) Begin() (end func(), ok bool) {
	if !l.s.start() {
		return func() {}, false
	}
	var once sync.Once
	return func() { once.Do(l.s.finish) }, true
}

// Active reporta si hay un ciclo en curso.
func (l *Latch) Active() bool { return l.s.active() }

// Wait bloquea hasta que termine el ciclo en curso, si lo hay.
func (l *Latch) Wait(ctx context.Context) error { return l.s.wait(ctx) }
