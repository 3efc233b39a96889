// Package settings loads experiment settings from defaults, an optional YAML
// file and AMT_* environment variables, in that order.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/schedule"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
	"gopkg.in/yaml.v3"
)

type SubjectConfig struct {
	ID      string `yaml:"id"`
	Age     int    `yaml:"age"`
	Session int    `yaml:"session"`
}

type StimuliConfig struct {
	Digits   []int  `yaml:"digits"`
	Language string `yaml:"language"`
}

type TimingConfig struct {
	ISIMs        int `yaml:"isi_ms"`
	RetentionMs  int `yaml:"retention_ms"`
	NoiseOnsetMs int `yaml:"noise_onset_ms"`
	FixationMs   int `yaml:"fixation_ms"`
	PostAudioMs  int `yaml:"post_audio_ms"`
	FeedbackMs   int `yaml:"feedback_ms"`
}

type DesignConfig struct {
	Loads       []int  `yaml:"loads"`
	SNRs        []int  `yaml:"snrs"`
	MainReps    int    `yaml:"main_reps"`
	NumPractice int    `yaml:"num_practice"`
	Randomize   bool   `yaml:"randomize"`
	Seed        uint64 `yaml:"seed"` // 0 draws a fresh seed
}

type CalibrationConfig struct {
	SNR         int `yaml:"snr"`
	DurationSec int `yaml:"duration_sec"`
}

type TTSConfig struct {
	Mode      string `yaml:"mode"` // google or command
	Command   string `yaml:"command"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type AudioConfig struct {
	Format  string `yaml:"format"` // mp3 or wav
	Bitrate string `yaml:"bitrate"`
	FFmpeg  string `yaml:"ffmpeg"`
}

type StorageConfig struct {
	AssetsDir string `yaml:"assets_dir"`
	DBPath    string `yaml:"db_path"`
	OutputDir string `yaml:"output_dir"`
}

type Settings struct {
	Subject     SubjectConfig     `yaml:"subject"`
	Stimuli     StimuliConfig     `yaml:"stimuli"`
	Timing      TimingConfig      `yaml:"timing"`
	Design      DesignConfig      `yaml:"design"`
	Calibration CalibrationConfig `yaml:"calibration"`
	TTS         TTSConfig         `yaml:"tts"`
	Audio       AudioConfig       `yaml:"audio"`
	Storage     StorageConfig     `yaml:"storage"`
}

func Default() Settings {
	return Settings{
		Subject: SubjectConfig{ID: "SUB001", Age: 25, Session: 1},
		Stimuli: StimuliConfig{
			Digits:   []int{1, 2, 3, 4, 5, 6, 7, 8, 9},
			Language: synth.DefaultLanguage,
		},
		Timing: TimingConfig{
			ISIMs:        800,
			RetentionMs:  2000,
			NoiseOnsetMs: 2000,
			FixationMs:   1000,
			PostAudioMs:  200,
			FeedbackMs:   1000,
		},
		Design: DesignConfig{
			Loads:       []int{2, 4, 6},
			SNRs:        []int{10, 5, 0},
			MainReps:    22,
			NumPractice: 1,
		},
		Calibration: CalibrationConfig{SNR: 0, DurationSec: 10},
		TTS:         TTSConfig{Mode: "google", TimeoutMs: 15000},
		Audio:       AudioConfig{Format: "mp3", Bitrate: "128k", FFmpeg: "ffmpeg"},
		Storage: StorageConfig{
			AssetsDir: "assets",
			DBPath:    "assets/clips.sqlite3",
			OutputDir: "data",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return s, fmt.Errorf("settings file not found: %w", err)
			}
			return s, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}

	applyEnvOverrides(&s)
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Marshal renders the settings as YAML.
func (s Settings) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

func applyEnvOverrides(s *Settings) {
	overrideString(&s.Subject.ID, "AMT_SUBJECT_ID")
	overrideInt(&s.Subject.Age, "AMT_AGE")
	overrideInt(&s.Subject.Session, "AMT_SESSION")
	overrideIntSlice(&s.Stimuli.Digits, "AMT_DIGITS")
	overrideString(&s.Stimuli.Language, "AMT_LANGUAGE")
	overrideInt(&s.Timing.ISIMs, "AMT_ISI_MS")
	overrideInt(&s.Timing.RetentionMs, "AMT_RETENTION_MS")
	overrideInt(&s.Timing.NoiseOnsetMs, "AMT_NOISE_ONSET_MS")
	overrideIntSlice(&s.Design.Loads, "AMT_LOADS")
	overrideIntSlice(&s.Design.SNRs, "AMT_SNRS")
	overrideInt(&s.Design.MainReps, "AMT_MAIN_REPS")
	overrideInt(&s.Design.NumPractice, "AMT_NUM_PRACTICE")
	overrideBool(&s.Design.Randomize, "AMT_RANDOMIZE")
	overrideString(&s.TTS.Mode, "AMT_TTS_MODE")
	overrideString(&s.TTS.Command, "AMT_TTS_COMMAND")
	overrideString(&s.Audio.Format, "AMT_AUDIO_FORMAT")
	overrideString(&s.Audio.FFmpeg, "AMT_FFMPEG")
	overrideString(&s.Storage.AssetsDir, "AMT_ASSETS_DIR")
	overrideString(&s.Storage.DBPath, "AMT_DB_PATH")
	overrideString(&s.Storage.OutputDir, "AMT_OUTPUT_DIR")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideIntSlice(target *[]int, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	parsed, err := ParseIntList(value)
	if err == nil && len(parsed) > 0 {
		*target = parsed
	}
}

// ParseIntList parses "2,4,6" (spaces allowed).
func ParseIntList(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Subject.ID) == "" {
		return errors.New("subject.id must not be empty")
	}
	if strings.ContainsAny(s.Subject.ID, `/\`) {
		return errors.New("subject.id must not contain path separators")
	}
	if s.Subject.Session < 1 {
		return errors.New("subject.session must be at least 1")
	}
	if len(s.Stimuli.Digits) == 0 {
		return errors.New("stimuli.digits: select at least one digit")
	}
	for _, d := range s.Stimuli.Digits {
		if d < 0 || d > 9 {
			return fmt.Errorf("stimuli.digits: %d is not a single digit", d)
		}
	}
	if !synth.IsSupported(s.Stimuli.Language) {
		return fmt.Errorf("stimuli.language %q must be one of %v", s.Stimuli.Language, synth.Languages())
	}
	t := s.Timing
	if t.ISIMs < 0 || t.RetentionMs < 0 || t.NoiseOnsetMs < 0 || t.FixationMs < 0 || t.PostAudioMs < 0 || t.FeedbackMs < 0 {
		return errors.New("timing values must be non-negative")
	}
	if len(s.Design.Loads) == 0 || len(s.Design.SNRs) == 0 {
		return errors.New("design.loads and design.snrs must not be empty")
	}
	if s.Design.MainReps < 0 || s.Design.NumPractice < 0 {
		return errors.New("design.main_reps and design.num_practice must be non-negative")
	}
	if s.Calibration.DurationSec < 0 {
		return errors.New("calibration.duration_sec must be non-negative")
	}
	switch s.TTS.Mode {
	case "google":
	case "command":
		if strings.TrimSpace(s.TTS.Command) == "" {
			return errors.New("tts.command is required when tts.mode is command")
		}
	default:
		return fmt.Errorf("tts.mode %q must be google or command", s.TTS.Mode)
	}
	switch s.Audio.Format {
	case "mp3", "wav":
	default:
		return fmt.Errorf("audio.format %q must be mp3 or wav", s.Audio.Format)
	}
	return nil
}

// ScheduleDesign returns the scheduler input described by the settings.
func (s Settings) ScheduleDesign() schedule.Design {
	return schedule.Design{
		Digits:      append([]int(nil), s.Stimuli.Digits...),
		Loads:       append([]int(nil), s.Design.Loads...),
		SNRs:        append([]int(nil), s.Design.SNRs...),
		MainReps:    s.Design.MainReps,
		NumPractice: s.Design.NumPractice,
		Randomize:   s.Design.Randomize,
		SubjectID:   s.Subject.ID,
		Session:     s.Subject.Session,
	}
}
