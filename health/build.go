package health

import (
	"fmt"
	"os"
	"runtime"
)

func getBuildInfo() string {
	version := getEnvOrDefault("BUILD_VERSION", "dev")
	commit := getEnvOrDefault("BUILD_COMMIT", "unknown")

	if len(commit) > 7 {
		commit = commit[:7]
	}

	return fmt.Sprintf("%s-%s (%s/%s %s)", version, commit, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
