package digitspan

import (
	"errors"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/schedule"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

type (
	Trial             = models.Trial
	Condition         = models.Condition
	Artifact          = models.Artifact
	ClipResult        = models.ClipResult
	Design            = schedule.Design
	Report            = schedule.Report
	TrialAudioRequest = synth.TrialAudioRequest
)

var (
	ErrAlreadyAnswered = models.ErrAlreadyAnswered
	ErrNoDigits        = schedule.ErrNoDigits
	ErrNoManifest      = errors.New("no clip manifest configured")
)

const (
	BlockPractice = models.BlockPractice
	BlockMain     = models.BlockMain
)
