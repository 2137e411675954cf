package config

// Default returns the built-in configuration. The token secret is left
// empty on purpose so Validate forces operators to set one.
func Default() *Config {
	return &Config{
		Server: Server{
			Bind:          "127.0.0.1:8750",
			PublicBaseURL: "http://127.0.0.1:8750",
			ProbeSizeKiB:  256,
		},
		Token: Token{
			LifetimeMinutes: 15,
		},
		Resolver: Resolver{
			CacheTTLSeconds: 300,
		},
		History: History{
			Enabled: true,
			DBPath:  "streamgate-history.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}
