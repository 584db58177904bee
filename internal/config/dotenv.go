package config

import (
	"os"
	"strings"
	"sync"
)

// lookupEnv checks the process environment first and falls back to a .env
// file in the working directory, so local runs pick up LiveKit credentials
// without exporting them.
func lookupEnv(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return dotEnv[key]
}

var (
	dotEnv     map[string]string
	dotEnvOnce sync.Once
)

func loadDotEnvOnce() {
	dotEnvOnce.Do(func() {
		dotEnv = parseDotEnvFile(".env")
	})
}

func parseDotEnvFile(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return parseDotEnv(string(data))
}

func parseDotEnv(content string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:idx])
		v := strings.TrimSpace(line[idx+1:])
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		m[k] = v
	}
	return m
}
