package clock

import "testing"

type fakeMachine struct {
	instret      uint64
	timerPending bool
	sTimer       bool
}

func (f *fakeMachine) Instret() uint64 { return f.instret }
func (f *fakeMachine) SetTimerInterrupt(supervisor, pending bool) {
	f.timerPending = pending
	f.sTimer = supervisor
}

func TestTimerFiresOnceAtCompare(t *testing.T) {
	m := &fakeMachine{}
	timer := NewTimer(false, 100)

	m.instret = 50
	timer.Tick(m)
	if m.timerPending {
		t.Fatal("timer fired before reaching compare")
	}

	m.instret = 100
	timer.Tick(m)
	if !m.timerPending {
		t.Fatal("timer did not fire at compare")
	}
	if m.sTimer {
		t.Fatal("expected a machine-mode timer interrupt, got supervisor")
	}
}

func TestTimerDoesNotRefireOnceDisarmed(t *testing.T) {
	m := &fakeMachine{instret: 100}
	timer := NewTimer(true, 100)
	timer.Tick(m)
	m.timerPending = false // simulate the guest clearing mip itself
	timer.Tick(m)
	if m.timerPending {
		t.Fatal("disarmed timer must not re-raise the interrupt")
	}
}

func TestSetCompareRearms(t *testing.T) {
	m := &fakeMachine{instret: 100}
	timer := NewTimer(false, 100)
	timer.Tick(m)
	m.timerPending = false

	timer.SetCompare(200)
	m.instret = 200
	timer.Tick(m)
	if !m.timerPending {
		t.Fatal("expected timer to re-fire after SetCompare")
	}
}
