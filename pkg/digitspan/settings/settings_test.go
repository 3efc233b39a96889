package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	d := s.ScheduleDesign()
	if d.MainReps != 22 || len(d.Digits) != 9 || d.NumPractice != 1 || d.Randomize {
		t.Errorf("unexpected design %+v", d)
	}
	if s.Stimuli.Language != "Hebrew" || s.Timing.ISIMs != 800 || s.Storage.OutputDir != "data" {
		t.Errorf("unexpected defaults %+v", s)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.yaml")
	yml := `
subject:
  id: P07
  session: 3
stimuli:
  digits: [1, 3, 5, 7]
  language: Arabic
design:
  loads: [2, 3]
  snrs: [6, 0]
  randomize: true
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Subject.ID != "P07" || s.Subject.Session != 3 || s.Subject.Age != 25 {
		t.Errorf("subject = %+v", s.Subject)
	}
	if !reflect.DeepEqual(s.Stimuli.Digits, []int{1, 3, 5, 7}) || s.Stimuli.Language != "Arabic" {
		t.Errorf("stimuli = %+v", s.Stimuli)
	}
	if !s.Design.Randomize || s.Design.MainReps != 22 {
		t.Errorf("design = %+v", s.Design)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AMT_SUBJECT_ID", "ENV1")
	t.Setenv("AMT_DIGITS", "2, 4,6")
	t.Setenv("AMT_MAIN_REPS", "5")
	t.Setenv("AMT_RANDOMIZE", "true")
	t.Setenv("AMT_SESSION", "not-a-number")

	s, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Subject.ID != "ENV1" || s.Design.MainReps != 5 || !s.Design.Randomize {
		t.Errorf("overrides not applied: %+v", s)
	}
	if !reflect.DeepEqual(s.Stimuli.Digits, []int{2, 4, 6}) {
		t.Errorf("digits = %v", s.Stimuli.Digits)
	}
	if s.Subject.Session != 1 {
		t.Errorf("malformed override should be ignored, session = %d", s.Subject.Session)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"no digits", func(s *Settings) { s.Stimuli.Digits = nil }, "at least one digit"},
		{"bad digit", func(s *Settings) { s.Stimuli.Digits = []int{1, 12} }, "single digit"},
		{"language", func(s *Settings) { s.Stimuli.Language = "French" }, "stimuli.language"},
		{"timing", func(s *Settings) { s.Timing.ISIMs = -1 }, "non-negative"},
		{"subject path", func(s *Settings) { s.Subject.ID = "../x" }, "path separators"},
		{"tts command", func(s *Settings) { s.TTS.Mode = "command" }, "tts.command"},
		{"format", func(s *Settings) { s.Audio.Format = "ogg" }, "audio.format"},
		{"session", func(s *Settings) { s.Subject.Session = 0 }, "session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s, Default()) {
		t.Error("settings changed across a YAML round trip")
	}
}

func TestParseIntList(t *testing.T) {
	got, err := ParseIntList(" 10, 5 ,0,")
	if err != nil || !reflect.DeepEqual(got, []int{10, 5, 0}) {
		t.Errorf("got %v, %v", got, err)
	}
	if _, err := ParseIntList("1,x"); err == nil {
		t.Error("expected error")
	}
}
