package main

import (
	"log"
	"os"
	"path/filepath"
)

func getConfigPath() string {
	// An explicit --config flag wins over the environment
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	// Default to config.yaml in current working directory
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error executing command: %v", err)
	}
}
