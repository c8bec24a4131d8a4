package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateInProgress, false},
		{StateApproved, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"in progress", StateInProgress, true},
		{"approved", StateApproved, true},
		{"rejected", StateRejected, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_Permit(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInProgress).Permit(TriggerRejectStage, StateRejected)

	machine := builder.Build(StateInProgress)

	if !machine.CanFire(TriggerRejectStage) {
		t.Error("CanFire(TriggerRejectStage) = false, want true")
	}
	if machine.CanFire(TriggerApproveStage) {
		t.Error("CanFire(TriggerApproveStage) = true, want false")
	}

	if err := machine.Fire(context.Background(), TriggerRejectStage); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if machine.State() != StateRejected {
		t.Errorf("State() = %v, want %v", machine.State(), StateRejected)
	}
}

func TestMachine_InvalidTransition(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInProgress).Permit(TriggerRejectStage, StateRejected)

	machine := builder.Build(StateRejected)

	err := machine.Fire(context.Background(), TriggerApproveStage)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want ErrInvalidTransition", err)
	}
	if machine.State() != StateRejected {
		t.Errorf("state changed after failed Fire: %v", machine.State())
	}
}

func TestNewInstanceMachine_ApproveIntermediateStage(t *testing.T) {
	machine := NewInstanceMachine(StateInProgress, func(ctx context.Context) bool {
		return false // not the last stage
	})

	if err := machine.Fire(context.Background(), TriggerApproveStage); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if machine.State() != StateInProgress {
		t.Errorf("State() = %v, want %v", machine.State(), StateInProgress)
	}
}

func TestNewInstanceMachine_ApproveFinalStage(t *testing.T) {
	machine := NewInstanceMachine(StateInProgress, func(ctx context.Context) bool {
		return true
	})

	if err := machine.Fire(context.Background(), TriggerApproveStage); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if machine.State() != StateApproved {
		t.Errorf("State() = %v, want %v", machine.State(), StateApproved)
	}
}

func TestNewInstanceMachine_Reject(t *testing.T) {
	machine := NewInstanceMachine(StateInProgress, func(ctx context.Context) bool {
		return false
	})

	if err := machine.Fire(context.Background(), TriggerRejectStage); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if machine.State() != StateRejected {
		t.Errorf("State() = %v, want %v", machine.State(), StateRejected)
	}
}

func TestNewInstanceMachine_TerminalStatesAreFinal(t *testing.T) {
	for _, state := range []State{StateApproved, StateRejected} {
		t.Run(string(state), func(t *testing.T) {
			machine := NewInstanceMachine(state, func(ctx context.Context) bool { return true })

			for _, trigger := range []Trigger{TriggerApproveStage, TriggerRejectStage} {
				if err := machine.Fire(context.Background(), trigger); !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Fire(%s) from %s error = %v, want ErrInvalidTransition", trigger, state, err)
				}
			}
			if machine.State() != state {
				t.Errorf("terminal state mutated: %v", machine.State())
			}
		})
	}
}
