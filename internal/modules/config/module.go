package config

import "go.uber.org/fx"

// Module отдаёт единственный *Config всем потребителям. Конфиг читается в main
// до сборки графа, чтобы логгер был готов раньше модулей.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
	)
}
