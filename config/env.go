package config

import (
	"fmt"
	"strconv"
	"strings"
)

// applyEnv overrides file settings with environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []string
	integer := func(key string, set func(int64)) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q is not an integer", key, v))
			return
		}
		set(n)
	}
	boolean := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
			return
		}
		*dst = b
	}

	str("PROJECT_ROOT", &c.Project.Root)
	boolean("ALLOW_EXTERNAL_PATHS", &c.Project.AllowExternalPaths)
	integer("MAX_FILE_SIZE", func(n int64) { c.Tools.MaxFileSize = n })
	integer("MAX_DEPTH", func(n int64) { c.Tools.MaxDepth = int(n) })
	str("LOG_LEVEL", &c.Log.Level)
	str("CODEBUDDY_PROVIDER", &c.Model.Provider)
	str("CODEBUDDY_MODEL", &c.Model.Model)
	integer("CODEBUDDY_MAX_ITERATIONS", func(n int64) { c.Agent.MaxIterations = int(n) })
	str("OPENAI_BASE_URL", &c.Model.BaseURL)

	// Only the selected provider's key variable is consulted.
	if c.Model.Provider != "" {
		str(strings.ToUpper(c.Model.Provider)+"_API_KEY", &c.Model.APIKey)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
