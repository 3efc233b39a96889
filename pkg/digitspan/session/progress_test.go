package session

import (
	"errors"
	"testing"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

func trials(block models.Block, n int) []models.Trial {
	out := make([]models.Trial, n)
	for i := range out {
		out[i] = models.Trial{Block: block, TrialNum: i + 1}
	}
	return out
}

func TestProgressWalksBothBlocks(t *testing.T) {
	p := NewProgress(trials(models.BlockPractice, 1), trials(models.BlockMain, 2))
	if p.Current() != nil {
		t.Fatal("no trial is current during setup")
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != StatusPractice || p.BlockName() != models.BlockPractice {
		t.Fatalf("status = %s", p.Status())
	}

	if !p.Advance() {
		t.Error("the single practice trial should close the block")
	}
	if p.Status() != StatusMainReady || p.Current() != nil {
		t.Fatalf("expected the main gate, got %s", p.Status())
	}
	if p.Advance() {
		t.Error("Advance at the gate must do nothing")
	}

	if err := p.BeginMain(); err != nil {
		t.Fatal(err)
	}
	if c := p.Current(); c == nil || c.Block != models.BlockMain || c.TrialNum != 1 {
		t.Fatalf("unexpected current trial %+v", c)
	}
	if p.Advance() {
		t.Error("first main trial should not close the block")
	}
	if p.Index() != 1 || p.Current().TrialNum != 2 {
		t.Errorf("index = %d", p.Index())
	}
	if !p.Advance() || p.Status() != StatusDone {
		t.Errorf("expected DONE, got %s", p.Status())
	}
}

func TestProgressEmptyBlocks(t *testing.T) {
	p := NewProgress(nil, nil)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != StatusMainReady {
		t.Fatalf("status = %s, want MAIN_READY", p.Status())
	}
	if err := p.BeginMain(); err != nil {
		t.Fatal(err)
	}
	if p.Status() != StatusDone {
		t.Errorf("empty main block should finish at once, got %s", p.Status())
	}
}

func TestProgressRejectsOutOfOrderCalls(t *testing.T) {
	p := NewProgress(trials(models.BlockPractice, 1), trials(models.BlockMain, 1))
	if err := p.BeginMain(); !errors.Is(err, ErrWrongStatus) {
		t.Errorf("BeginMain during setup: %v", err)
	}
	p.Start()
	if err := p.Start(); !errors.Is(err, ErrWrongStatus) {
		t.Errorf("second Start: %v", err)
	}
	if err := p.BeginMain(); !errors.Is(err, ErrWrongStatus) {
		t.Errorf("BeginMain during practice: %v", err)
	}
}
