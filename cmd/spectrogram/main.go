// Command spectrogram renders PNG spectrograms of the stimuli, or of WAV/MP3
// files given as arguments, for checking noise shape and mixing by eye.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/utils"
)

var (
	configPath string
	outputDir  string
	digits     string
	snr        float64
	width      int
	height     int
)

func init() {
	flag.StringVar(&configPath, "config", os.Getenv("AMT_CONFIG"), "YAML settings file")
	flag.StringVar(&outputDir, "o", "spectrograms", "Output directory")
	flag.StringVar(&digits, "digits", "3,7,1,5", "Digit sequence for the sample trial")
	flag.Float64Var(&snr, "snr", 5, "SNR of the sample trial in dB")
	flag.IntVar(&width, "width", 2048, "Image width")
	flag.IntVar(&height, "height", 512, "Image height (frequency bins)")
}

func main() {
	flag.Parse()

	if err := utils.MakeDir(outputDir); err != nil {
		log.Fatal(err)
	}

	// Files on the command line are drawn as they are.
	if flag.NArg() > 0 {
		for _, path := range flag.Args() {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Printf("Error reading %s: %v", path, err)
				continue
			}
			buf, err := audio.DecodeClip(data, audio.DefaultSampleRate)
			if err != nil {
				log.Printf("Error decoding %s: %v", path, err)
				continue
			}
			save(filepath.Base(path), buf)
		}
		fmt.Println("Done!")
		return
	}

	st, err := settings.Load(configPath)
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	seq, err := settings.ParseIntList(digits)
	if err != nil {
		log.Fatalf("Invalid -digits: %v", err)
	}
	opts, err := digitspan.OptionsFromSettings(st)
	if err != nil {
		log.Fatal(err)
	}
	svc, err := digitspan.NewService(append(opts, digitspan.WithEncoder(audio.WAVEncoder{}))...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	save("noise", svc.SpeechShapedNoise(5000))

	r, err := svc.RenderTrial(ctx, digitspan.TrialAudioRequest{
		Digits:       seq,
		SNR:          snr,
		ISIMs:        st.Timing.ISIMs,
		RetentionMs:  st.Timing.RetentionMs,
		NoiseOnsetMs: st.Timing.NoiseOnsetMs,
		Language:     st.Stimuli.Language,
	})
	if err != nil {
		log.Fatalf("Failed to render trial: %v", err)
	}
	if len(r.Degraded) > 0 {
		log.Printf("No speech for digits %v; they are silent in the image", r.Degraded)
	}
	name := fmt.Sprintf("trial_%s_snr%+g", strings.ReplaceAll(digits, ",", ""), snr)
	save(name+"_mix", r.Mix)
	save(name+"_speech", r.Speech)

	fmt.Println("Done!")
}

func save(name string, buf *audio.Buffer) {
	if buf.Len() == 0 {
		log.Printf("Skipping %s: no samples", name)
		return
	}
	fmt.Printf("Processing %s (%d samples at %d Hz)...\n", name, buf.Len(), buf.SampleRate)

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude, linear scale.
	spectrogram.Drawfft(
		img,
		buf.Samples,
		uint32(buf.SampleRate),
		uint32(height),
		false,
		false,
		true,
		false,
	)

	outputPath := filepath.Join(outputDir, name+".png")
	if err := spectrogram.SavePng(img, outputPath); err != nil {
		log.Printf("Error saving PNG for %s: %v", outputPath, err)
		return
	}
	fmt.Printf("Saved spectrogram to %s\n", outputPath)
}
