package types_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/snehjoshi/spoolq/internal/types"
)

func TestParseDiscipline(t *testing.T) {
	cases := map[string]types.Discipline{
		"":         types.FIFO,
		"fifo":     types.FIFO,
		" LIFO ":   types.LIFO,
		"PRIO":     types.PRIO,
		"priority": types.PRIO,
	}
	for in, want := range cases {
		got, err := types.ParseDiscipline(in)
		if err != nil {
			t.Fatalf("ParseDiscipline(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDiscipline(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := types.ParseDiscipline("stack"); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("ParseDiscipline(stack): want ErrConfig, got %v", err)
	}
}

func TestDiscipline_TextRoundTrip(t *testing.T) {
	for _, d := range []types.Discipline{types.FIFO, types.LIFO, types.PRIO} {
		b, err := d.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", d, err)
		}
		var back types.Discipline
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", b, err)
		}
		if back != d {
			t.Errorf("round trip: want %s, got %s", d, back)
		}
	}
	if _, err := types.Discipline(7).MarshalText(); err == nil {
		t.Error("MarshalText of invalid discipline should fail")
	}
}

func TestCheckPriority(t *testing.T) {
	for p := types.MinPriority; p <= types.MaxPriority; p++ {
		if err := types.CheckPriority(p); err != nil {
			t.Errorf("CheckPriority(%d): %v", p, err)
		}
	}
	for _, p := range []int{-1, 10, 15} {
		if err := types.CheckPriority(p); !errors.Is(err, types.ErrInvalidPriority) {
			t.Errorf("CheckPriority(%d): want ErrInvalidPriority, got %v", p, err)
		}
	}
}

func TestError_IsMatchesKindAndStage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &types.Error{
		Kind:  types.KindRead,
		Stage: types.StageLock,
		Queue: "orders",
		Path:  "/tmp/q/0.x",
	})

	if !errors.Is(err, types.ErrRead) {
		t.Error("want errors.Is(err, ErrRead)")
	}
	if !errors.Is(err, &types.Error{Kind: types.KindRead, Stage: types.StageLock}) {
		t.Error("want match on read/lock stage")
	}
	if errors.Is(err, &types.Error{Kind: types.KindRead, Stage: types.StageOpen}) {
		t.Error("must not match a different stage")
	}
	if errors.Is(err, types.ErrDelete) {
		t.Error("must not match a different kind")
	}
	if !strings.Contains(err.Error(), `queue "orders": read (lock) /tmp/q/0.x`) {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestWithQueue_And_IsWarning(t *testing.T) {
	base := &types.Error{Kind: types.KindDelete, Path: "/x"}
	err := types.WithQueue(base, "jobs")

	var e *types.Error
	if !errors.As(err, &e) || e.Queue != "jobs" {
		t.Fatalf("WithQueue did not attach queue name: %v", err)
	}
	if base.Queue != "" {
		t.Error("WithQueue must not mutate its argument")
	}
	if !types.IsWarning(err) {
		t.Error("delete errors are warning class")
	}
	if types.IsWarning(types.ErrCorrupt) {
		t.Error("corrupt errors are not warning class")
	}
	if types.KindOf(errors.New("plain")) != types.KindUnknown {
		t.Error("KindOf(plain) should be KindUnknown")
	}
}
