package internal

// Option configures Run and RunMCP.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig supplies the loaded configuration. Both entry points require it.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
