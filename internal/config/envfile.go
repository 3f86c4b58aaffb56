package config

import (
	"bufio"
	"errors"
	"os"
	"strings"
)

// EnvFileVar overrides the .env path.
const EnvFileVar = "CRONHOOK_ENV_FILE"

// LoadEnvFile applies KEY=VALUE lines from .env (or $CRONHOOK_ENV_FILE) to
// the process environment. Variables already set win. A missing file is not
// an error. It returns the path used and how many variables were set.
func LoadEnvFile() (string, int, error) {
	path := strings.TrimSpace(os.Getenv(EnvFileVar))
	if path == "" {
		path = ".env"
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, 0, nil
		}
		return path, 0, err
	}
	return path, applyEnv(string(content)), nil
}

func applyEnv(content string) int {
	sc := bufio.NewScanner(strings.NewReader(content))
	n := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if os.Setenv(key, unquote(value)) == nil {
			n++
		}
	}
	return n
}

func unquote(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `\n`, "\n")
	case s[0] == '\'' && s[len(s)-1] == '\'':
		return s[1 : len(s)-1]
	}
	return s
}
