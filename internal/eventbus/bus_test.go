package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewCouncilEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(CouncilEventRoleCompleted, func(ctx context.Context, event CouncilEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(CouncilEventRoleCompleted, func(ctx context.Context, event CouncilEvent) error {
		calledB = true
		return nil
	})

	if err := bus.Publish(context.Background(), CouncilEventRoleCompleted, CouncilEvent{Type: CouncilEventRoleCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusPublishOnlyMatchingType(t *testing.T) {
	bus := NewCouncilEventBus()
	called := false
	bus.Subscribe(CouncilEventAdmissionDenied, func(ctx context.Context, event CouncilEvent) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), CouncilEventRoleFailed, CouncilEvent{Type: CouncilEventRoleFailed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("handler for another type should not be called")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewCouncilEventBus()
	called := false
	unsubscribe := bus.Subscribe(CouncilEventRoleCompleted, func(ctx context.Context, event CouncilEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), CouncilEventRoleCompleted, CouncilEvent{Type: CouncilEventRoleCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewCouncilEventBus()
	bus.Subscribe(CouncilEventRoleCompleted, func(ctx context.Context, event CouncilEvent) error {
		return errors.New("err-a")
	})
	bus.Subscribe(CouncilEventRoleCompleted, func(ctx context.Context, event CouncilEvent) error {
		return errors.New("err-b")
	})

	if err := bus.Publish(context.Background(), CouncilEventRoleCompleted, CouncilEvent{Type: CouncilEventRoleCompleted}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBusSubscribeNilHandler(t *testing.T) {
	bus := NewCouncilEventBus()
	unsubscribe := bus.Subscribe(CouncilEventRoleCompleted, nil)
	unsubscribe()
	if err := bus.Publish(context.Background(), CouncilEventRoleCompleted, CouncilEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
