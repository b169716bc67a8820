package hooks

import (
	"context"
	"testing"
)

func TestRunBefore_PriorityOrder(t *testing.T) {
	p := NewPipeline()
	var order []string

	p.Subscribe(BeforeToolCall, "low", 1, func(ctx context.Context, hctx Context, ev *Event) Result {
		order = append(order, "low")
		return PassResult()
	})
	p.Subscribe(BeforeToolCall, "high", 10, func(ctx context.Context, hctx Context, ev *Event) Result {
		order = append(order, "high")
		return PassResult()
	})
	p.Subscribe(BeforeToolCall, "mid-a", 5, func(ctx context.Context, hctx Context, ev *Event) Result {
		order = append(order, "mid-a")
		return PassResult()
	})
	p.Subscribe(BeforeToolCall, "mid-b", 5, func(ctx context.Context, hctx Context, ev *Event) Result {
		order = append(order, "mid-b")
		return PassResult()
	})

	p.RunBefore(context.Background(), Context{}, &Event{ToolName: "Shell"})

	want := []string{"high", "mid-a", "mid-b", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v (stable for equal priorities)", order, want)
		}
	}
}

func TestRunBefore_BlockShortCircuits(t *testing.T) {
	p := NewPipeline()
	ran := false

	p.Subscribe(BeforeToolCall, "blocker", 10, func(ctx context.Context, hctx Context, ev *Event) Result {
		return BlockResult("denied")
	})
	p.Subscribe(BeforeToolCall, "late", 1, func(ctx context.Context, hctx Context, ev *Event) Result {
		ran = true
		return PassResult()
	})

	res := p.RunBefore(context.Background(), Context{}, &Event{ToolName: "Shell"})
	if res.Kind != Block || res.Reason != "denied" {
		t.Errorf("res = %+v", res)
	}
	if ran {
		t.Error("later hook ran after a block")
	}
}

func TestRunBefore_ModificationsCompose(t *testing.T) {
	p := NewPipeline()

	p.Subscribe(BeforeToolCall, "first", 10, func(ctx context.Context, hctx Context, ev *Event) Result {
		return ModifyResult(map[string]interface{}{"a": 1})
	})
	p.Subscribe(BeforeToolCall, "second", 5, func(ctx context.Context, hctx Context, ev *Event) Result {
		// Later hooks see earlier modifications.
		if ev.Params["a"] != 1 {
			t.Errorf("second hook missing earlier modification: %v", ev.Params)
		}
		return ModifyResult(map[string]interface{}{"b": 2})
	})

	ev := &Event{ToolName: "Shell", Params: map[string]interface{}{"command": "ls"}}
	res := p.RunBefore(context.Background(), Context{}, ev)

	if res.Kind != Modify {
		t.Fatalf("res = %+v", res)
	}
	if res.Params["command"] != "ls" || res.Params["a"] != 1 || res.Params["b"] != 2 {
		t.Errorf("merged params = %v", res.Params)
	}
}

func TestRunBefore_PanickingSubscriberIsPass(t *testing.T) {
	p := NewPipeline()
	p.Subscribe(BeforeToolCall, "bad", 10, func(ctx context.Context, hctx Context, ev *Event) Result {
		panic("boom")
	})
	p.Subscribe(BeforeToolCall, "good", 1, func(ctx context.Context, hctx Context, ev *Event) Result {
		return ModifyResult(map[string]interface{}{"ok": true})
	})

	res := p.RunBefore(context.Background(), Context{}, &Event{ToolName: "Shell"})
	if res.Kind == Block {
		t.Error("panic must not block the call")
	}
	if res.Params["ok"] != true {
		t.Error("pipeline stopped after panicking subscriber")
	}
}

func TestRunAfter_BlockReplacesResult(t *testing.T) {
	p := NewPipeline()
	observed := false

	p.Subscribe(AfterToolCall, "scrubber", 10, func(ctx context.Context, hctx Context, ev *Event) Result {
		return BlockResult("secrets detected")
	})
	p.Subscribe(AfterToolCall, "observer", 1, func(ctx context.Context, hctx Context, ev *Event) Result {
		observed = true
		return PassResult()
	})

	res := p.RunAfter(context.Background(), Context{}, &Event{ToolName: "Shell", Result: "output"})
	if res.Kind != Block || res.Reason != "secrets detected" {
		t.Errorf("res = %+v", res)
	}
	if !observed {
		t.Error("after-hooks must all observe the result, even after a block")
	}
}
