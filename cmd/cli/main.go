package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/record"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/session"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/synth"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/logger"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/utils"
)

// Global flags
var (
	configPath string
	assetsDir  string
	dbPath     string
	outputDir  string
	language   string
	subjectID  string
	sessionNum int
	seed       uint64
)

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault("AMT_CONFIG", ""), "YAML settings file")
	flag.StringVar(&assetsDir, "assets", "", "Directory holding cached digit clips (overrides settings)")
	flag.StringVar(&dbPath, "db", "", "Path to the clip manifest database (overrides settings)")
	flag.StringVar(&outputDir, "out", "", "Directory for session CSV files (overrides settings)")
	flag.StringVar(&language, "lang", "", "Speech language, e.g. Hebrew or English (overrides settings)")
	flag.StringVar(&subjectID, "subject", "", "Subject ID (overrides settings)")
	flag.IntVar(&sessionNum, "session", 0, "Session number (overrides settings)")
	flag.Uint64Var(&seed, "seed", 0, "Random seed for noise and trial order; 0 draws a fresh one")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadSettings reads the settings file and applies command line overrides.
func loadSettings() (settings.Settings, error) {
	s, err := settings.Load(configPath)
	if err != nil {
		return s, err
	}
	if assetsDir != "" {
		s.Storage.AssetsDir = assetsDir
	}
	if dbPath != "" {
		s.Storage.DBPath = dbPath
	}
	if outputDir != "" {
		s.Storage.OutputDir = outputDir
	}
	if language != "" {
		s.Stimuli.Language = language
	}
	if subjectID != "" {
		s.Subject.ID = subjectID
	}
	if sessionNum > 0 {
		s.Subject.Session = sessionNum
	}
	if seed != 0 {
		s.Design.Seed = seed
	}
	return s, s.Validate()
}

// createService creates a new digit-span service configured from s.
func createService(s settings.Settings) (digitspan.Service, error) {
	opts, err := digitspan.OptionsFromSettings(s)
	if err != nil {
		return nil, err
	}
	return digitspan.NewService(opts...)
}

func mustSetup() (settings.Settings, digitspan.Service) {
	log := logger.GetLogger()

	s, err := loadSettings()
	if err != nil {
		fmt.Printf("❌ Invalid settings: %v\n", err)
		log.Errorf("Settings rejected: %v", err)
		os.Exit(1)
	}

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService(s)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return s, svc
}

func main() {
	log := logger.GetLogger()

	printBanner()

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Infof("Executing command: %s", command)

	switch command {
	case "run":
		handleRun(args)
	case "plan":
		handlePlan(args)
	case "trial":
		handleTrial(args)
	case "digit":
		handleDigit(args)
	case "calibrate":
		handleCalibrate(args)
	case "demo":
		handleDemo(args)
	case "cache":
		handleCache(args)
	case "export":
		handleExport(args)
	case "config":
		handleConfig()
	case "languages":
		for _, l := range synth.Languages() {
			fmt.Printf("  %-8s %s\n", l, synth.LanguageCode(l))
		}
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
    ___             ___ __                   __  ___
   /   | __  ______/ (_) /_____  _______  __/  |/  /__  ____ ___
  / /| |/ / / / __  / / __/ __ \/ ___/ / / / /|_/ / _ \/ __ '__ \
 / ___ / /_/ / /_/ / / /_/ /_/ / /  / /_/ / /  / /  __/ / / / / /
/_/  |_\__,_/\__,_/_/\__/\____/_/   \__, /_/  /_/\___/_/ /_/ /_/
                                   /____/
           Digit Span in Noise Experiment
`
	fmt.Println(banner)
}

func handleRun(args []string) {
	log := logger.GetLogger()

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	silent := runCmd.Bool("mute", false, "Do not open an audio device")
	runCmd.Parse(args)

	s, svc := mustSetup()
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("📦 Preparing %s clips...\n", s.Stimuli.Language)
	if failed, err := svc.WarmCache(ctx, s.Stimuli.Language, s.Stimuli.Digits); err != nil {
		fmt.Printf("⚠️  No speech for digits %v (%v); those digits will be silent\n", failed, err)
		log.Warnf("Cache warm-up incomplete: %v", err)
	}

	var player session.Player = mute{}
	if !*silent {
		spk := newSpeaker(audio.DefaultSampleRate)
		defer spk.Close()
		player = spk
	}

	con := newConsole(os.Stdin, os.Stdout)
	r, rep, err := svc.NewSession(s, player, con, sessionObserver(con))
	if err != nil {
		fmt.Printf("❌ Failed to plan session: %v\n", err)
		log.Errorf("NewSession failed: %v", err)
		os.Exit(1)
	}
	if rep.FallbackLoad {
		fmt.Printf("⚠️  No requested load fits the selected digits; using load %d\n", rep.Conditions[0].Load)
	}
	fmt.Printf("💾 Autosaving to %s\n", r.AutosavePath())

	runErr := r.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Printf("\n❌ Session stopped: %v\n", runErr)
		log.Errorf("Session aborted: %v", runErr)
	}

	sum, err := r.Finish()
	if err != nil {
		fmt.Printf("%s❌ Final export failed: %v%s\n", ansiRed, err, ansiReset)
	}
	fmt.Println("\n✅ Session complete")
	fmt.Printf("   Main accuracy: %s\n", sum)
	if sum.FinalPath != "" {
		fmt.Printf("   Data:          %s\n", sum.FinalPath)
	}
	if sum.SaveFailures > 0 {
		fmt.Printf("%s   %d response(s) could not be autosaved%s\n", ansiRed, sum.SaveFailures, ansiReset)
	}
}

func handlePlan(args []string) {
	planCmd := flag.NewFlagSet("plan", flag.ExitOnError)
	asCSV := planCmd.Bool("csv", false, "Print the schedule as CSV")
	planCmd.Parse(args)

	s, svc := mustSetup()
	defer svc.Close()

	practice, mainTrials, rep, err := svc.GenerateTrials(s.ScheduleDesign())
	if err != nil {
		fmt.Printf("❌ Failed to generate trials: %v\n", err)
		os.Exit(1)
	}
	if *asCSV {
		fmt.Print(svc.ExportCSV(append(practice, mainTrials...)))
		return
	}

	fmt.Printf("\n📋 %d practice + %d main trials over %d condition(s)\n\n", len(practice), len(mainTrials), len(rep.Conditions))
	for _, c := range rep.Conditions {
		fmt.Printf("   load %d @ %+d dB SNR\n", c.Load, c.SNR)
	}
	if rep.ForcedMatches > 0 {
		fmt.Printf("\n⚠️  %d trial(s) contain every selected digit and were forced to match\n", rep.ForcedMatches)
	}
	fmt.Println()
	for _, t := range practice {
		fmt.Printf("   %-8s #%-3d %-20s probe %d match=%v\n", t.Block, t.TrialNum, record.FormatDigits(t.Digits), t.Probe, t.IsMatch)
	}
}

func handleTrial(args []string) {
	log := logger.GetLogger()

	trialCmd := flag.NewFlagSet("trial", flag.ExitOnError)
	digits := trialCmd.String("digits", "", "Comma separated digit sequence, e.g. 3,7,1 (required)")
	snr := trialCmd.Float64("snr", 5, "Signal-to-noise ratio in dB")
	out := trialCmd.String("o", "", "Write the encoded trial to this file")
	play := trialCmd.Bool("play", false, "Play the trial")
	trialCmd.Parse(args)

	seq, err := settings.ParseIntList(*digits)
	if err != nil {
		fmt.Printf("❌ Invalid --digits: %v\n", err)
		os.Exit(1)
	}

	s, svc := mustSetup()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	art, err := svc.TrialAudio(ctx, digitspan.TrialAudioRequest{
		Digits:       seq,
		SNR:          *snr,
		ISIMs:        s.Timing.ISIMs,
		RetentionMs:  s.Timing.RetentionMs,
		NoiseOnsetMs: s.Timing.NoiseOnsetMs,
		Language:     s.Stimuli.Language,
	})
	if err != nil {
		fmt.Printf("❌ Failed to render trial: %v\n", err)
		log.Errorf("TrialAudio failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Rendered %s at %+.1f dB SNR\n", record.FormatDigits(seq), *snr)
	fmt.Printf("   Duration:     %dms\n", art.DurationMs)
	fmt.Printf("   Speech onset: %dms\n", art.SpeechOnsetMs)
	fmt.Printf("   Size:         %s (%s)\n", humanize.Bytes(uint64(len(art.Data))), art.MIMEType)
	if len(art.Degraded) > 0 {
		fmt.Printf("   ⚠️  Silent digits: %v\n", art.Degraded)
	}
	deliver(ctx, art, *out, *play)
}

func handleDigit(args []string) {
	digitCmd := flag.NewFlagSet("digit", flag.ExitOnError)
	out := digitCmd.String("o", "", "Write the encoded clip to this file")
	play := digitCmd.Bool("play", false, "Play the clip")
	digitCmd.Parse(args)

	if digitCmd.NArg() < 1 {
		fmt.Println("Usage: amt digit <0-9> [-o file] [-play]")
		os.Exit(1)
	}
	d, err := strconv.Atoi(digitCmd.Arg(0))
	if err != nil || d < 0 || d > 9 {
		fmt.Printf("❌ Invalid digit: %q\n", digitCmd.Arg(0))
		os.Exit(1)
	}

	s, svc := mustSetup()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res := svc.DigitAudio(ctx, d, s.Stimuli.Language)
	fmt.Printf("\n🔤 Digit %d (%s): %s, %dms\n", d, res.Code, res.Status, res.Audio.DurationMs())
	if !res.OK() {
		fmt.Printf("   ⚠️  %v\n", res.Err)
		os.Exit(1)
	}
	art, err := svc.DigitArtifact(ctx, d, s.Stimuli.Language)
	if err != nil {
		fmt.Printf("❌ Failed to encode clip: %v\n", err)
		os.Exit(1)
	}
	deliver(ctx, art, *out, *play)
}

func handleCalibrate(args []string) {
	calCmd := flag.NewFlagSet("calibrate", flag.ExitOnError)
	snr := calCmd.Float64("snr", 0, "SNR the loudness reference is rendered at")
	duration := calCmd.Int("duration", 0, "Length in seconds (default from settings)")
	out := calCmd.String("o", "", "Write the encoded noise to this file")
	play := calCmd.Bool("play", false, "Play the noise")
	analyze := calCmd.Bool("analyze", false, "Print level and spectral statistics")
	calCmd.Parse(args)

	s, svc := mustSetup()
	defer svc.Close()

	if *duration <= 0 {
		*duration = s.Calibration.DurationSec
	}
	snrSet := false
	calCmd.Visit(func(f *flag.Flag) { snrSet = snrSet || f.Name == "snr" })
	if !snrSet {
		*snr = float64(s.Calibration.SNR)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	art, err := svc.CalibrationAudio(ctx, *snr, *duration)
	if err != nil {
		fmt.Printf("❌ Failed to render calibration noise: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n🎚️  Calibration noise: %ds at the level of a %+.1f dB SNR trial\n", *duration, *snr)

	if *analyze {
		buf, err := audio.DecodeClip(art.Data, audio.DefaultSampleRate)
		if err != nil {
			fmt.Printf("❌ Failed to decode for analysis: %v\n", err)
			os.Exit(1)
		}
		st := audio.Analyze(buf)
		fmt.Printf("   Level:     %.2f dBFS (peak %.3f)\n", st.DBFS, st.Peak)
		fmt.Printf("   Mean:      %.5f ± %.5f\n", st.Mean, st.StdDev)
		fmt.Printf("   Centroid:  %.0f Hz\n", st.CentroidHz)
		lp := audio.ButterworthLowPass(synth.NoiseCutoffHz, float64(buf.SampleRate))
		fmt.Printf("   Tilt:      %.1f dB (100-500 Hz over 4-8 kHz), %.1f dB by design\n", st.LowHighDiff, audio.ExpectedTiltDB(lp, float64(buf.SampleRate)))
	}
	deliver(ctx, art, *out, *play)
}

func handleDemo(args []string) {
	demoCmd := flag.NewFlagSet("demo", flag.ExitOnError)
	snr := demoCmd.Float64("snr", 10, "Signal-to-noise ratio in dB")
	out := demoCmd.String("o", "", "Write the encoded demo to this file")
	play := demoCmd.Bool("play", false, "Play the demo")
	demoCmd.Parse(args)

	s, svc := mustSetup()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	art, err := svc.DemoAudio(ctx, s.Stimuli.Digits, *snr, s.Timing.ISIMs, s.Stimuli.Language)
	if err != nil {
		fmt.Printf("❌ Failed to render demo: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n🎬 Demo %s at %+.1f dB SNR, %dms\n", record.FormatDigits(synth.DemoDigits(s.Stimuli.Digits)), *snr, art.DurationMs)
	deliver(ctx, art, *out, *play)
}

func handleCache(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: amt cache warm|list|verify|rm <digit>")
		os.Exit(1)
	}

	s, svc := mustSetup()
	defer svc.Close()

	switch args[0] {
	case "list":
	case "verify":
		bad, err := svc.VerifyClips()
		if err != nil {
			fmt.Printf("❌ Verification failed: %v\n", err)
			os.Exit(1)
		}
		if len(bad) == 0 {
			fmt.Println("✅ All cached clips match the manifest")
			return
		}
		fmt.Printf("\n⚠️  %d clip(s) are missing or changed on disk:\n", len(bad))
		for _, c := range bad {
			fmt.Printf("   %s_%d  %s\n", c.Code, c.Digit, c.Path)
		}
		fmt.Println("\n   Remove them with: amt --lang <language> cache rm <digit>")
		os.Exit(1)
	case "rm":
		if len(args) < 2 {
			fmt.Println("Usage: amt cache rm <digit>")
			os.Exit(1)
		}
		d, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Printf("❌ Invalid digit: %q\n", args[1])
			os.Exit(1)
		}
		if err := svc.ForgetClip(s.Stimuli.Language, d); err != nil {
			fmt.Printf("❌ Failed to remove clip: %v\n", err)
			log.Errorf("ForgetClip failed: %v", err)
			os.Exit(1)
		}
		fmt.Printf("🗑️  Removed %s clip for %d; it will be synthesized again on next use\n", s.Stimuli.Language, d)
		return
	case "warm":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		fmt.Printf("📥 Synthesizing missing %s clips for %v...\n", s.Stimuli.Language, s.Stimuli.Digits)
		failed, err := svc.WarmCache(ctx, s.Stimuli.Language, s.Stimuli.Digits)
		if err != nil {
			fmt.Printf("\n⚠️  %d digit(s) failed %v: %v\n", len(failed), failed, err)
			log.Warnf("WarmCache incomplete: %v", err)
			os.Exit(1)
		}
		fmt.Println("✅ Cache is complete")
		return
	default:
		fmt.Printf("Unknown cache command: %s\n", args[0])
		os.Exit(1)
	}

	clips, err := svc.ListClips()
	if err != nil {
		fmt.Printf("❌ Failed to list clips: %v\n", err)
		log.Errorf("ListClips failed: %v", err)
		os.Exit(1)
	}
	if len(clips) == 0 {
		fmt.Println("\n📭 No cached clips")
		return
	}

	var total int64
	fmt.Printf("\n📚 %d cached clip(s):\n\n", len(clips))
	for _, c := range clips {
		total += c.SizeBytes
		line := fmt.Sprintf("   %-3s %d  %8s", c.Code, c.Digit, humanize.Bytes(uint64(c.SizeBytes)))
		if c.DurationMs > 0 {
			line += fmt.Sprintf("  %4dms", c.DurationMs)
		}
		if !c.CreatedAt.IsZero() {
			line += "  " + humanize.Time(c.CreatedAt)
		}
		if c.Provider != "" {
			line += "  via " + c.Provider
		}
		fmt.Println(line)
	}
	fmt.Printf("\n   Total: %s in %s\n", humanize.Bytes(uint64(total)), s.Storage.AssetsDir)
}

func handleExport(args []string) {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	dest := exportCmd.String("o", "", "Destination file (default: the session's _final.csv)")
	exportCmd.Parse(args)

	if exportCmd.NArg() < 1 {
		fmt.Println("Usage: amt export <autosave.csv> [-o final.csv]")
		os.Exit(1)
	}
	src := exportCmd.Arg(0)

	f, err := os.Open(src)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	trials, err := record.ParseCSV(f)
	f.Close()
	if err != nil {
		fmt.Printf("❌ Failed to read %s: %v\n", src, err)
		os.Exit(1)
	}
	if len(trials) == 0 {
		fmt.Println("📭 No trials recorded")
		return
	}

	path := *dest
	if path == "" {
		first := trials[0]
		path = record.FinalPath(filepath.Dir(src), first.SubjectID, first.Session)
	}
	if utils.FileExists(path) {
		fmt.Printf("⚠️  Overwriting %s\n", path)
	}
	if err := record.WriteFinal(path, trials); err != nil {
		fmt.Printf("❌ Export failed: %v\n", err)
		os.Exit(1)
	}

	correct, total := record.Accuracy(trials, digitspan.BlockMain)
	fmt.Printf("\n✅ Exported %d trial(s) to %s\n", len(trials), path)
	if total > 0 {
		fmt.Printf("   Main accuracy: %d/%d (%.1f%%)\n", correct, total, float64(correct)/float64(total)*100)
	}
}

func handleConfig() {
	s, err := loadSettings()
	if err != nil {
		fmt.Printf("❌ Invalid settings: %v\n", err)
		os.Exit(1)
	}
	data, err := s.Marshal()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(data))
}

// deliver writes art to path and/or plays it to the end.
func deliver(ctx context.Context, art *digitspan.Artifact, path string, play bool) {
	if path != "" {
		if err := utils.AtomicWriteFile(path, art.Data, 0o644); err != nil {
			fmt.Printf("❌ Failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("💾 Wrote %s\n", path)
	}
	if play {
		spk := newSpeaker(audio.DefaultSampleRate)
		defer spk.Close()
		if err := spk.PlayAndWait(ctx, art); err != nil {
			fmt.Printf("❌ Playback failed: %v\n", err)
		}
	}
}

func sessionObserver(c *console) session.Option {
	return session.WithObserver(c.observe)
}

func printUsage() {
	fmt.Println("AuditoryMemoryTest - Digit Span in Noise")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --config <file>    YAML settings (env: AMT_CONFIG)")
	fmt.Println("  --assets <dir>     Clip cache directory (env: AMT_ASSETS_DIR, default: assets)")
	fmt.Println("  --db <path>        Clip manifest database (env: AMT_DB_PATH, default: assets/clips.sqlite3)")
	fmt.Println("  --out <dir>        Session data directory (env: AMT_OUTPUT_DIR, default: data)")
	fmt.Println("  --lang <name>      Speech language (default: Hebrew)")
	fmt.Println("  --subject <id>     Subject ID (default: SUB001)")
	fmt.Println("  --session <n>      Session number (default: 1)")
	fmt.Println("  --seed <n>         Reproducible noise and trial order")
	fmt.Println("\nUsage:")
	fmt.Println("  amt [global-options] run [-mute]")
	fmt.Println("  amt [global-options] plan [-csv]")
	fmt.Println("  amt [global-options] trial -digits 3,7,1 [-snr 5] [-o trial.mp3] [-play]")
	fmt.Println("  amt [global-options] digit <0-9> [-o clip.mp3] [-play]")
	fmt.Println("  amt [global-options] calibrate [-snr 0] [-duration 10] [-analyze] [-play]")
	fmt.Println("  amt [global-options] demo [-snr 10] [-play]")
	fmt.Println("  amt [global-options] cache warm|list|verify|rm <digit>")
	fmt.Println("  amt export <autosave.csv> [-o final.csv]")
	fmt.Println("  amt [global-options] config")
	fmt.Println("  amt languages")
	fmt.Println("\nExamples:")
	fmt.Println("  # Run a session for a new participant")
	fmt.Println("  amt --subject P07 --session 2 run")
	fmt.Println()
	fmt.Println("  # Render one trial to disk")
	fmt.Println("  amt --lang English trial -digits 4,9,2,6 -snr 0 -o trial.mp3")
	fmt.Println()
	fmt.Println("  # Check the headphone level")
	fmt.Println("  amt calibrate -analyze -play")
}
