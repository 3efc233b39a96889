package session

import (
	"fmt"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

// Progress tracks the status and position of a session: setup, practice,
// main-ready gate, main, done. Runner drives it locally; the HTTP server
// drives it one request at a time. It is not safe for concurrent use.
type Progress struct {
	status   Status
	practice []models.Trial
	main     []models.Trial
	idx      int
}

func NewProgress(practice, main []models.Trial) *Progress {
	return &Progress{status: StatusSetup, practice: practice, main: main}
}

func (p *Progress) Status() Status { return p.status }

// Index is the 0-based position of the current trial within its block.
func (p *Progress) Index() int { return p.idx }

// Block returns the trials of the current block: practice while practicing,
// main otherwise.
func (p *Progress) Block() []models.Trial {
	if p.status == StatusPractice {
		return p.practice
	}
	return p.main
}

// BlockName labels the block Block returns.
func (p *Progress) BlockName() models.Block {
	if p.status == StatusPractice {
		return models.BlockPractice
	}
	return models.BlockMain
}

// Counts returns the practice and main block sizes.
func (p *Progress) Counts() (practice, main int) {
	return len(p.practice), len(p.main)
}

// Current returns the trial awaiting an answer, or nil outside a block.
func (p *Progress) Current() *models.Trial {
	if p.status != StatusPractice && p.status != StatusMain {
		return nil
	}
	blk := p.Block()
	if p.idx >= len(blk) {
		return nil
	}
	return &blk[p.idx]
}

// Start leaves setup for the practice block, or for the main gate when
// there are no practice trials.
func (p *Progress) Start() error {
	if p.status != StatusSetup {
		return fmt.Errorf("start: %w (%s)", ErrWrongStatus, p.status)
	}
	p.idx = 0
	p.status = StatusPractice
	if len(p.practice) == 0 {
		p.status = StatusMainReady
	}
	return nil
}

// BeginMain leaves the gate after practice. An empty main block ends the
// session at once.
func (p *Progress) BeginMain() error {
	if p.status != StatusMainReady {
		return fmt.Errorf("begin main: %w (%s)", ErrWrongStatus, p.status)
	}
	p.idx = 0
	p.status = StatusMain
	if len(p.main) == 0 {
		p.status = StatusDone
	}
	return nil
}

// Advance moves past the current trial and reports whether that closed the
// block.
func (p *Progress) Advance() (blockDone bool) {
	if p.status != StatusPractice && p.status != StatusMain {
		return false
	}
	p.idx++
	if p.idx < len(p.Block()) {
		return false
	}
	switch p.status {
	case StatusPractice:
		p.status = StatusMainReady
	case StatusMain:
		p.status = StatusDone
	}
	p.idx = 0
	return true
}
