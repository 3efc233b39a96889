//go:build !js && !wasm

package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/settings"
)

var (
	port           int
	configPath     string
	assetsDir      string
	outputDir      string
	allowedOrigins string
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&configPath, "config", getEnvOrDefault("AMT_CONFIG", ""), "YAML settings file")
	flag.StringVar(&assetsDir, "assets", "", "Clip cache directory (overrides settings)")
	flag.StringVar(&outputDir, "out", "", "Session data directory (overrides settings)")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	st, err := settings.Load(configPath)
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	if assetsDir != "" {
		st.Storage.AssetsDir = assetsDir
	}
	if outputDir != "" {
		st.Storage.OutputDir = outputDir
	}

	opts, err := digitspan.OptionsFromSettings(st)
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	service, err := digitspan.NewService(opts...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		Settings:       st,
		AllowedOrigins: origins,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
