// Package schedule builds the condition space and the practice and main
// trial lists of a digit-span session.
package schedule

import (
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

var ErrNoDigits = errors.New("no digits selected")

// Design is everything needed to lay out one session.
type Design struct {
	Digits      []int
	Loads       []int
	SNRs        []int
	MainReps    int
	NumPractice int
	Randomize   bool

	SubjectID string
	Session   int
}

// Report summarises decisions the scheduler made on the caller's behalf.
type Report struct {
	Conditions []models.Condition
	// FallbackLoad is set when no requested load fit the digit set and a
	// single substitute load was used.
	FallbackLoad bool
	// ForcedMatches counts trials whose sequence used every digit, leaving no
	// non-match probe; they were turned into match trials.
	ForcedMatches int
}

type Scheduler struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New returns a scheduler drawing from rng, or from a time-seeded source
// when rng is nil.
func New(rng *rand.Rand) *Scheduler {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Scheduler{rng: rng, now: time.Now}
}

// NewSeeded is New with a PCG source seeded from seed.
func NewSeeded(seed uint64) *Scheduler {
	return New(rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)))
}

// UniqueDigits drops repeats, keeping first occurrences in order.
func UniqueDigits(digits []int) []int {
	seen := make(map[int]bool, len(digits))
	out := make([]int, 0, len(digits))
	for _, d := range digits {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// FilterLoads keeps loads between 1 and available, sorted ascending. When
// none qualify it returns the single load min(3, available) and fallback=true.
func FilterLoads(loads []int, available int) (valid []int, fallback bool) {
	for _, l := range loads {
		if l >= 1 && l <= available {
			valid = append(valid, l)
		}
	}
	if len(valid) == 0 {
		return []int{min(3, available)}, true
	}
	sort.Ints(valid)
	return valid, false
}

// Conditions crosses loads and snrs: SNR descending on the outside, load
// ascending inside, so the easiest condition comes first.
func Conditions(loads, snrs []int) []models.Condition {
	ls := append([]int(nil), loads...)
	sort.Ints(ls)
	ss := append([]int(nil), snrs...)
	sort.Sort(sort.Reverse(sort.IntSlice(ss)))

	out := make([]models.Condition, 0, len(ls)*len(ss))
	for _, snr := range ss {
		for _, load := range ls {
			out = append(out, models.Condition{Load: load, SNR: snr})
		}
	}
	return out
}

// Generate lays out the practice and main blocks. Practice cycles through
// the conditions until NumPractice trials exist. Main repeats every
// condition MainReps times, either in contiguous runs or fully shuffled.
func (s *Scheduler) Generate(d Design) (practice, main []models.Trial, rep Report, err error) {
	d.Digits = UniqueDigits(d.Digits)
	if len(d.Digits) == 0 {
		return nil, nil, rep, ErrNoDigits
	}

	loads, fallback := FilterLoads(d.Loads, len(d.Digits))
	conds := Conditions(loads, d.SNRs)
	rep.Conditions = conds
	rep.FallbackLoad = fallback

	practice = make([]models.Trial, 0, max(d.NumPractice, 0))
	if len(conds) > 0 {
		for i := 0; i < d.NumPractice; i++ {
			practice = append(practice, s.NewTrial(d, i+1, models.BlockPractice, conds[i%len(conds)]))
		}
	}

	mainConds := make([]models.Condition, 0, len(conds)*max(d.MainReps, 0))
	for _, c := range conds {
		for r := 0; r < d.MainReps; r++ {
			mainConds = append(mainConds, c)
		}
	}
	if d.Randomize {
		s.mu.Lock()
		s.rng.Shuffle(len(mainConds), func(i, j int) {
			mainConds[i], mainConds[j] = mainConds[j], mainConds[i]
		})
		s.mu.Unlock()
	}

	main = make([]models.Trial, 0, len(mainConds))
	for i, c := range mainConds {
		main = append(main, s.NewTrial(d, i+1, models.BlockMain, c))
	}

	for _, blk := range [][]models.Trial{practice, main} {
		for i := range blk {
			if blk[i].ForcedMatch {
				rep.ForcedMatches++
			}
		}
	}
	return practice, main, rep, nil
}

// NewTrial draws a digit sequence of cond.Load distinct digits and a probe.
// Match and non-match are equally likely; if the sequence exhausts the digit
// set the trial becomes a match and ForcedMatch is set. The load is clamped
// to between 1 and the number of distinct digits; with no digits at all the
// trial carries no sequence.
func (s *Scheduler) NewTrial(d Design, num int, block models.Block, cond models.Condition) models.Trial {
	digits := UniqueDigits(d.Digits)
	t := models.Trial{
		Timestamp: s.now(),
		SubjectID: d.SubjectID,
		Session:   d.Session,
		Block:     block,
		TrialNum:  num,
		SNR:       cond.SNR,
	}
	if len(digits) == 0 {
		return t
	}

	s.mu.Lock()
	perm := s.rng.Perm(len(digits))
	isMatch := s.rng.IntN(2) == 0
	s.mu.Unlock()

	load := max(1, min(cond.Load, len(digits)))
	seq := make([]int, load)
	inSeq := make(map[int]bool, load)
	for i := 0; i < load; i++ {
		seq[i] = digits[perm[i]]
		inSeq[seq[i]] = true
	}
	var complement []int
	for _, dg := range digits {
		if !inSeq[dg] {
			complement = append(complement, dg)
		}
	}

	forced := false
	if !isMatch && len(complement) == 0 {
		isMatch = true
		forced = true
	}

	s.mu.Lock()
	var probe int
	if isMatch {
		probe = seq[s.rng.IntN(len(seq))]
	} else {
		probe = complement[s.rng.IntN(len(complement))]
	}
	s.mu.Unlock()

	t.Load = load
	t.Digits = seq
	t.Probe = probe
	t.IsMatch = isMatch
	t.ForcedMatch = forced
	return t
}
