package coordinator

import (
	"testing"

	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/com"
	"github.com/greenroomhq/greenroom/pkg/logger"
)

func join(identity string) api.JoinRequest {
	return api.JoinRequest{Identity: identity, Name: "n-" + identity}
}

func TestRegistryQueueOrder(t *testing.T) {
	r := NewRegistry(logger.Default())
	r.Register(join("a"), com.NewUid())
	r.Register(join("b"), com.NewUid())
	r.Register(join("c"), com.NewUid())

	var got []string
	for _, p := range r.Waiting() {
		got = append(got, p.Identity)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue order %v, want %v", got, want)
		}
	}
}

func TestRegistryRejoinMovesToBack(t *testing.T) {
	r := NewRegistry(logger.Default())
	r.Register(join("a"), com.NewUid())
	r.Register(join("b"), com.NewUid())
	r.Register(join("a"), com.NewUid())

	if next := r.NextWaiting(); next == nil || next.Identity != "b" {
		t.Fatalf("next waiting = %v, want b", next)
	}
	if n := len(r.Waiting()); n != 2 {
		t.Fatalf("waiting = %d, want 2", n)
	}
}

func TestRegistryRejoinResetsTerminalStatus(t *testing.T) {
	r := NewRegistry(logger.Default())
	mod := com.NewUid()
	r.Register(join("a"), com.NewUid())
	if _, err := r.StartInspection("a", mod); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Finish("a", api.StatusAdmitted); err != nil {
		t.Fatal(err)
	}
	p := r.Register(join("a"), com.NewUid())
	if p.Status != api.StatusWaiting {
		t.Fatalf("status = %v, want waiting", p.Status)
	}
}

func TestRegistryStatusTransitions(t *testing.T) {
	mod := com.NewUid()
	other := com.NewUid()

	t.Run("inspect absent", func(t *testing.T) {
		r := NewRegistry(logger.Default())
		if _, err := r.StartInspection("ghost", mod); err != ErrNotFound {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("double inspect", func(t *testing.T) {
		r := NewRegistry(logger.Default())
		r.Register(join("a"), com.NewUid())
		if _, err := r.StartInspection("a", mod); err != nil {
			t.Fatal(err)
		}
		if _, err := r.StartInspection("a", other); err != ErrInspected {
			t.Fatalf("err = %v, want ErrInspected", err)
		}
	})
	t.Run("finish without inspection", func(t *testing.T) {
		r := NewRegistry(logger.Default())
		r.Register(join("a"), com.NewUid())
		if _, err := r.Finish("a", api.StatusAdmitted); err != ErrWrongStatus {
			t.Fatalf("err = %v, want ErrWrongStatus", err)
		}
	})
	t.Run("finish needs terminal status", func(t *testing.T) {
		r := NewRegistry(logger.Default())
		r.Register(join("a"), com.NewUid())
		if _, err := r.StartInspection("a", mod); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Finish("a", api.StatusWaiting); err != ErrWrongStatus {
			t.Fatalf("err = %v, want ErrWrongStatus", err)
		}
	})
	t.Run("terminal is final", func(t *testing.T) {
		r := NewRegistry(logger.Default())
		r.Register(join("a"), com.NewUid())
		if _, err := r.StartInspection("a", mod); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Finish("a", api.StatusRemoved); err != nil {
			t.Fatal(err)
		}
		if _, err := r.StartInspection("a", mod); err != ErrWrongStatus {
			t.Fatalf("err = %v, want ErrWrongStatus", err)
		}
		if _, err := r.CancelInspection("a"); err != ErrWrongStatus {
			t.Fatalf("err = %v, want ErrWrongStatus", err)
		}
	})
}

func TestRegistryCancelKeepsQueuePosition(t *testing.T) {
	r := NewRegistry(logger.Default())
	mod := com.NewUid()
	r.Register(join("a"), com.NewUid())
	r.Register(join("b"), com.NewUid())
	if _, err := r.StartInspection("a", mod); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CancelInspection("a"); err != nil {
		t.Fatal(err)
	}
	if next := r.NextWaiting(); next == nil || next.Identity != "a" {
		t.Fatalf("next waiting = %v, want a", next)
	}
}

func TestRegistrySnapshotIncludesAllStatuses(t *testing.T) {
	r := NewRegistry(logger.Default())
	mod := com.NewUid()
	r.Register(join("a"), com.NewUid())
	r.Register(join("b"), com.NewUid())
	r.Register(join("c"), com.NewUid())
	if _, err := r.StartInspection("a", mod); err != nil {
		t.Fatal(err)
	}
	if _, err := r.StartInspection("b", mod); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Finish("b", api.StatusAdmitted); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot size = %d, want 3", len(snap))
	}
	statuses := map[string]api.Status{}
	for _, p := range snap {
		statuses[p.Identity] = p.Status
	}
	if statuses["a"] != api.StatusInspecting ||
		statuses["b"] != api.StatusAdmitted ||
		statuses["c"] != api.StatusWaiting {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestRegistryRemoveByTransport(t *testing.T) {
	r := NewRegistry(logger.Default())
	addr := com.NewUid()
	r.Register(join("a"), addr)
	r.Register(join("b"), com.NewUid())

	if p := r.RemoveByTransport(addr); p == nil || p.Identity != "a" {
		t.Fatalf("removed = %v, want a", p)
	}
	if p := r.RemoveByTransport(addr); p != nil {
		t.Fatalf("second removal = %v, want nil", p)
	}
	if n := len(r.Waiting()); n != 1 {
		t.Fatalf("waiting = %d, want 1", n)
	}
}
