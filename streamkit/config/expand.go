package config

import (
	"os"
	"os/exec"
	"strings"
)

func logicalName(key string) string {
	if name, ok := strings.CutSuffix(key, "_env"); ok {
		return name
	}
	if name, ok := strings.CutSuffix(key, "_eval"); ok {
		return name
	}
	return key
}

// expandValue resolves one option variant: the plain value, the named
// environment variable for `_env`, or the trimmed stdout of running the
// given command for `_eval`.
func expandValue(key, value string) (string, error) {
	switch {
	case strings.HasSuffix(key, "_env"):
		return os.Getenv(value), nil
	case strings.HasSuffix(key, "_eval"):
		parts := strings.Fields(value)
		if len(parts) == 0 {
			return "", Errorf("%s: empty command", key)
		}
		out, err := exec.Command(parts[0], parts[1:]...).Output()
		if err != nil {
			return "", Errorf("%s: %v", key, err)
		}
		return strings.TrimSpace(string(out)), nil
	default:
		return value, nil
	}
}
