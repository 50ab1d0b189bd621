package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Providers: ProvidersConfig{
			QuoteChain:          []string{"fmp", "alphavantage", "twelvedata"},
			QuoteTimeoutSeconds: 5,
			RequestsPerSecond:   2,
			FMP: APIProviderConfig{
				Enabled: true,
				APIBase: "https://financialmodelingprep.com/api/v3",
				APIKey:  "${FMP_API_KEY}",
			},
			AlphaVantage: APIProviderConfig{
				Enabled: true,
				APIBase: "https://www.alphavantage.co",
				APIKey:  "${ALPHA_VANTAGE_API_KEY}",
			},
			TwelveData: APIProviderConfig{
				Enabled: true,
				APIBase: "https://api.twelvedata.com",
				APIKey:  "${TWELVE_DATA_API_KEY}",
			},
			Perplexity: PerplexityConfig{
				APIBase:        "https://api.perplexity.ai",
				APIKey:         "${PERPLEXITY_API_KEY}",
				Model:          "sonar",
				Temperature:    0.3,
				MaxTokens:      400,
				TimeoutSeconds: 8,
			},
		},
		SMS: SMSConfig{
			TargetChars:   300,
			MaxChars:      1520,
			DefaultSource: "API",
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Watchlist: WatchlistConfig{
			DBPath: "~/.finbot/watchlist.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
			Port:     9090,
		},
	}
}
