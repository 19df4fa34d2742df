package resilience

import (
	"context"
	"errors"
	"testing"
)

// backend is a named function used as a group member.
type backend struct {
	name  string
	err   error
	calls int
}

func (b *backend) call() (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return b.name, nil
}

func newGroup(cfg FallbackConfig, members ...*backend) *FallbackGroup[*backend] {
	g := NewFallbackGroup(members[0], members[0].name, cfg)
	for _, m := range members[1:] {
		g.Add(m.name, m)
	}
	return g
}

func call(b *backend) (string, error) { return b.call() }

func TestDo_PrimaryWins(t *testing.T) {
	t.Parallel()

	a, b := &backend{name: "a"}, &backend{name: "b"}
	got, err := Do(context.Background(), newGroup(FallbackConfig{}, a, b), call)
	if err != nil || got != "a" {
		t.Fatalf("Do = %q, %v; want a", got, err)
	}
	if b.calls != 0 {
		t.Errorf("fallback called %d times", b.calls)
	}
}

func TestDo_FailsOver(t *testing.T) {
	t.Parallel()

	a, b, c := &backend{name: "a", err: errBackend}, &backend{name: "b", err: errBackend}, &backend{name: "c"}
	got, err := Do(context.Background(), newGroup(FallbackConfig{}, a, b, c), call)
	if err != nil || got != "c" {
		t.Fatalf("Do = %q, %v; want c", got, err)
	}
}

func TestDo_AllFailed(t *testing.T) {
	t.Parallel()

	last := errors.New("last one down")
	g := newGroup(FallbackConfig{}, &backend{name: "a", err: errBackend}, &backend{name: "b", err: last})
	_, err := Do(context.Background(), g, call)
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, last) {
		t.Errorf("err = %v, want ErrAllFailed wrapping the last error", err)
	}
}

func TestDo_SkipsOpenMembers(t *testing.T) {
	t.Parallel()

	a, b := &backend{name: "a", err: errBackend}, &backend{name: "b"}
	g := newGroup(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}}, a, b)

	for range 3 {
		if _, err := Do(context.Background(), g, call); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if a.calls != 1 {
		t.Errorf("open primary called %d times, want 1", a.calls)
	}
	members := g.Members()
	if members[0].State != StateOpen || members[1].State != StateClosed {
		t.Errorf("Members = %+v", members)
	}
	if !g.Available() {
		t.Error("Available = false with a closed member")
	}
}

func TestDo_NeutralErrorStopsFailover(t *testing.T) {
	t.Parallel()

	errNothing := errors.New("nothing to do")
	a, b := &backend{name: "a", err: errNothing}, &backend{name: "b"}
	cfg := FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures: 1,
		Neutral:     func(err error) bool { return errors.Is(err, errNothing) },
	}}
	g := newGroup(cfg, a, b)

	if _, err := Do(context.Background(), g, call); !errors.Is(err, errNothing) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want the neutral error unwrapped", err)
	}
	if b.calls != 0 {
		t.Errorf("fallback called %d times", b.calls)
	}
	if g.Members()[0].State != StateClosed {
		t.Error("neutral error opened the breaker")
	}
}

func TestDo_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &backend{name: "a"}
	if _, err := Do(ctx, newGroup(FallbackConfig{}, a), call); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if a.calls != 0 {
		t.Errorf("member called %d times after cancel", a.calls)
	}
}

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	a, b := &backend{name: "a", err: errBackend}, &backend{name: "b"}
	g := newGroup(FallbackConfig{}, a, b)
	var used string
	err := g.Execute(context.Background(), func(m *backend) error {
		_, err := m.call()
		if err == nil {
			used = m.name
		}
		return err
	})
	if err != nil || used != "b" {
		t.Errorf("Execute = %v, used %q", err, used)
	}
	if g.Primary() != a {
		t.Error("Primary is not the first member")
	}
}

func TestFallbackGroup_Unavailable(t *testing.T) {
	t.Parallel()

	g := newGroup(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}},
		&backend{name: "a", err: errBackend})
	_, _ = Do(context.Background(), g, call)
	if g.Available() {
		t.Error("Available = true with every breaker open")
	}
}
