package event

import "testing"

type flagEvent struct {
	ID int64
}

type moveEvent struct {
	PlayerID int64
}

func TestEmitReachesSubscribersInOrder(t *testing.T) {
	b := NewBus()
	var got []int
	Subscribe(b, func(flagEvent) { got = append(got, 1) })
	Subscribe(b, func(flagEvent) { got = append(got, 2) })

	Emit(b, flagEvent{ID: 7})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("handler order = %v, want [1 2]", got)
	}
}

func TestEmitIsTypeScoped(t *testing.T) {
	b := NewBus()
	var flags, moves int
	Subscribe(b, func(flagEvent) { flags++ })
	Subscribe(b, func(moveEvent) { moves++ })

	Emit(b, flagEvent{})
	Emit(b, flagEvent{})
	Emit(b, moveEvent{})
	if flags != 2 || moves != 1 {
		t.Fatalf("flags=%d moves=%d, want 2 and 1", flags, moves)
	}
}

func TestEmitWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBus()
	Emit(b, flagEvent{ID: 1}) // must not panic
}

func TestEmitPassesPayload(t *testing.T) {
	b := NewBus()
	var got int64
	Subscribe(b, func(e flagEvent) { got = e.ID })
	Emit(b, flagEvent{ID: 42})
	if got != 42 {
		t.Fatalf("payload = %d, want 42", got)
	}
}
