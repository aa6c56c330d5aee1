package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Gateway: GatewayConfig{
			APIURL:                   "http://localhost:8080",
			ReconnectIntervalSeconds: 5,
			MaxReconnectDelaySeconds: 300,
			RequestTimeoutSeconds:    10,
		},
		Accounts: nil,
		History: HistoryConfig{
			MaxMessages: 100,
		},
		Attachments: AttachmentsConfig{
			Dir: "~/.sigbridge/attachments",
		},
		Nats: NatsConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "signal.inbound",
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8099,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
