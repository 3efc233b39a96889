package schedule

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

func allDigits() []int { return []int{1, 2, 3, 4, 5, 6, 7, 8, 9} }

func TestConditionsOrder(t *testing.T) {
	got := Conditions([]int{6, 2, 4}, []int{0, 10, 5})
	want := []models.Condition{
		{Load: 2, SNR: 10}, {Load: 4, SNR: 10}, {Load: 6, SNR: 10},
		{Load: 2, SNR: 5}, {Load: 4, SNR: 5}, {Load: 6, SNR: 5},
		{Load: 2, SNR: 0}, {Load: 4, SNR: 0}, {Load: 6, SNR: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Conditions = %v\nwant %v", got, want)
	}
}

func TestConditionSpaceSize(t *testing.T) {
	tests := []struct {
		loads     []int
		snrs      []int
		available int
		size      int
		fallback  bool
	}{
		{[]int{2, 4, 6}, []int{10, 5, 0}, 9, 9, false},
		{[]int{2, 4, 6}, []int{10, 5, 0}, 4, 6, false},
		{[]int{2, 4, 6}, []int{0}, 2, 1, false},
		{[]int{4, 6}, []int{10, 5}, 3, 2, true},
		{[]int{5}, []int{3}, 1, 1, true},
		{[]int{0, -1, 2}, []int{1, 2}, 5, 2, false},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%v/%v/%d", tt.loads, tt.snrs, tt.available)
		t.Run(name, func(t *testing.T) {
			loads, fallback := FilterLoads(tt.loads, tt.available)
			conds := Conditions(loads, tt.snrs)
			if len(conds) != tt.size || fallback != tt.fallback {
				t.Errorf("got %d conditions (fallback=%v), want %d (%v)", len(conds), fallback, tt.size, tt.fallback)
			}
			if len(conds) != len(loads)*len(tt.snrs) {
				t.Errorf("size %d != |loads| %d x |snrs| %d", len(conds), len(loads), len(tt.snrs))
			}
			for i := 1; i < len(conds); i++ {
				prev, cur := conds[i-1], conds[i]
				if cur.SNR > prev.SNR || (cur.SNR == prev.SNR && cur.Load < prev.Load) {
					t.Errorf("order broken at %d: %v then %v", i, prev, cur)
				}
			}
		})
	}
}

func TestFallbackLoad(t *testing.T) {
	loads, fb := FilterLoads([]int{6}, 2)
	if !fb || !reflect.DeepEqual(loads, []int{2}) {
		t.Errorf("got %v fallback=%v, want [2] true", loads, fb)
	}
	loads, _ = FilterLoads([]int{7, 8}, 5)
	if !reflect.DeepEqual(loads, []int{3}) {
		t.Errorf("got %v, want [3]", loads)
	}
}

func TestPracticeCycles(t *testing.T) {
	s := NewSeeded(1)
	practice, _, rep, err := s.Generate(Design{
		Digits:      allDigits(),
		Loads:       []int{2, 4, 6},
		SNRs:        []int{5},
		MainReps:    1,
		NumPractice: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Conditions) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(rep.Conditions))
	}
	if len(practice) != 5 {
		t.Fatalf("expected 5 practice trials, got %d", len(practice))
	}
	for i, idx := range []int{0, 1, 2, 0, 1} {
		if practice[i].Condition() != rep.Conditions[idx] {
			t.Errorf("practice %d has %v, want %v", i, practice[i].Condition(), rep.Conditions[idx])
		}
		if practice[i].TrialNum != i+1 || practice[i].Block != models.BlockPractice {
			t.Errorf("practice %d numbered %d block %s", i, practice[i].TrialNum, practice[i].Block)
		}
	}
}

func TestZeroPractice(t *testing.T) {
	practice, main, _, err := NewSeeded(2).Generate(Design{
		Digits: allDigits(), Loads: []int{2}, SNRs: []int{0}, MainReps: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(practice) != 0 || len(main) != 3 {
		t.Errorf("got %d practice / %d main", len(practice), len(main))
	}
}

func TestMainBlocked(t *testing.T) {
	const reps = 4
	_, main, rep, err := NewSeeded(3).Generate(Design{
		Digits:   allDigits(),
		Loads:    []int{2, 4, 6},
		SNRs:     []int{10, 5, 0},
		MainReps: reps,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(main) != len(rep.Conditions)*reps {
		t.Fatalf("expected %d trials, got %d", len(rep.Conditions)*reps, len(main))
	}
	for i, tr := range main {
		if want := rep.Conditions[i/reps]; tr.Condition() != want {
			t.Fatalf("trial %d has %v, want %v", i, tr.Condition(), want)
		}
		if tr.TrialNum != i+1 || tr.Block != models.BlockMain {
			t.Errorf("trial %d numbered %d block %s", i, tr.TrialNum, tr.Block)
		}
	}
}

func conditionCounts(trials []models.Trial) map[models.Condition]int {
	out := make(map[models.Condition]int)
	for _, tr := range trials {
		out[tr.Condition()]++
	}
	return out
}

func TestMainRandomizedSameMultiset(t *testing.T) {
	d := Design{
		Digits:   allDigits(),
		Loads:    []int{2, 4, 6},
		SNRs:     []int{10, 5, 0},
		MainReps: 22,
	}
	_, blocked, _, err := NewSeeded(4).Generate(d)
	if err != nil {
		t.Fatal(err)
	}
	d.Randomize = true
	_, shuffled, _, err := NewSeeded(4).Generate(d)
	if err != nil {
		t.Fatal(err)
	}

	if len(shuffled) != 198 {
		t.Fatalf("expected 198 trials, got %d", len(shuffled))
	}
	if !reflect.DeepEqual(conditionCounts(blocked), conditionCounts(shuffled)) {
		t.Error("shuffled block must contain the same conditions")
	}
	same := true
	for i := range blocked {
		if blocked[i].Condition() != shuffled[i].Condition() {
			same = false
			break
		}
	}
	if same {
		t.Error("198 shuffled trials came out in blocked order")
	}
	for i, tr := range shuffled {
		if tr.TrialNum != i+1 {
			t.Fatalf("trial numbers must restart at 1, got %d at %d", tr.TrialNum, i)
		}
	}
}

func TestTrialInvariants(t *testing.T) {
	digits := []int{1, 3, 5, 7, 9}
	available := map[int]bool{}
	for _, d := range digits {
		available[d] = true
	}

	practice, main, _, err := NewSeeded(5).Generate(Design{
		Digits:      digits,
		Loads:       []int{2, 4},
		SNRs:        []int{10, 0},
		MainReps:    50,
		NumPractice: 3,
		SubjectID:   "SUB001",
		Session:     2,
	})
	if err != nil {
		t.Fatal(err)
	}

	matches := 0
	for _, tr := range append(practice, main...) {
		if len(tr.Digits) != tr.Load {
			t.Fatalf("sequence %v has length %d, load %d", tr.Digits, len(tr.Digits), tr.Load)
		}
		seen := map[int]bool{}
		for _, d := range tr.Digits {
			if !available[d] {
				t.Fatalf("digit %d not in the available set", d)
			}
			if seen[d] {
				t.Fatalf("repeated digit in %v", tr.Digits)
			}
			seen[d] = true
		}
		if tr.IsMatch != seen[tr.Probe] {
			t.Fatalf("probe %d vs %v inconsistent with is_match=%v", tr.Probe, tr.Digits, tr.IsMatch)
		}
		if !available[tr.Probe] {
			t.Fatalf("probe %d not available", tr.Probe)
		}
		if tr.ForcedMatch || tr.Answered() {
			t.Fatalf("unexpected state on fresh trial %+v", tr)
		}
		if tr.SubjectID != "SUB001" || tr.Session != 2 || tr.Timestamp.IsZero() {
			t.Fatalf("trial not stamped: %+v", tr)
		}
		if tr.IsMatch {
			matches++
		}
	}
	if matches < 60 || matches > 143 {
		t.Errorf("match rate %d/203 far from 50%%", matches)
	}
}

func TestForcedMatchReported(t *testing.T) {
	practice, main, rep, err := NewSeeded(6).Generate(Design{
		Digits:      []int{2, 4, 6},
		Loads:       []int{3},
		SNRs:        []int{0},
		MainReps:    40,
		NumPractice: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	forced := 0
	for _, tr := range append(practice, main...) {
		if !tr.IsMatch {
			t.Fatalf("full-set sequence %v cannot be a non-match", tr.Digits)
		}
		sorted := append([]int(nil), tr.Digits...)
		sort.Ints(sorted)
		if !reflect.DeepEqual(sorted, []int{2, 4, 6}) {
			t.Fatalf("sequence %v should use every digit", tr.Digits)
		}
		if tr.ForcedMatch {
			forced++
		}
	}
	if forced == 0 {
		t.Error("expected some forced matches over 42 trials")
	}
	if rep.ForcedMatches != forced {
		t.Errorf("report says %d forced matches, trials say %d", rep.ForcedMatches, forced)
	}
}

func TestNoDigits(t *testing.T) {
	_, _, _, err := NewSeeded(7).Generate(Design{Loads: []int{2}, SNRs: []int{0}, MainReps: 1})
	if !errors.Is(err, ErrNoDigits) {
		t.Errorf("expected ErrNoDigits, got %v", err)
	}
}

func TestDuplicateDigitsIgnored(t *testing.T) {
	_, main, _, err := NewSeeded(8).Generate(Design{
		Digits: []int{1, 1, 2, 2}, Loads: []int{2}, SNRs: []int{0}, MainReps: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range main {
		if tr.Digits[0] == tr.Digits[1] {
			t.Fatalf("duplicate digits in %v", tr.Digits)
		}
	}
}
