package config

import "os"

// ApplyEnvConfig applies HASHFEED_* variables. They override the file but not explicit flags.
// GITHUB_TOKEN is honoured when HASHFEED_GITHUB_TOKEN is unset.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("output-dir", os.Getenv("HASHFEED_OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("store", os.Getenv("HASHFEED_STORE"), &cfg.Store)
	s.setString("allowlist", os.Getenv("HASHFEED_ALLOWLIST"), &cfg.Allowlist)
	s.setString("user-agent", os.Getenv("HASHFEED_USER_AGENT"), &cfg.UserAgent)
	s.setString("log-level", os.Getenv("HASHFEED_LOG_LEVEL"), &cfg.LogLevel)

	token := os.Getenv("HASHFEED_GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	s.setString("github-token", token, &cfg.GitHubToken)

	if err := s.setDuration("timeout", os.Getenv("HASHFEED_TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setIntFromString("retries", os.Getenv("HASHFEED_RETRIES"), &cfg.Retries); err != nil {
		return err
	}
	if err := s.setFloatFromString("rate-limit", os.Getenv("HASHFEED_RATE_LIMIT"), &cfg.RateLimit); err != nil {
		return err
	}
	s.setBoolFromString("strict", os.Getenv("HASHFEED_STRICT"), &cfg.Strict)
	return nil
}

// ConfigPath returns the config file to read: flagPath, then HASHFEED_CONFIG,
// then DefaultConfigFile if it exists. Empty means no file.
func ConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("HASHFEED_CONFIG"); p != "" {
		return p
	}
	if FileExists(DefaultConfigFile) {
		return DefaultConfigFile
	}
	return ""
}
