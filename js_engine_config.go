package docmap

type jsEngineConfig struct {
	registry *FunctionRegistry
}

// JSEngineOption configures the JS engine.
type JSEngineOption func(*jsEngineConfig)

// JSWithFunctionRegistry wires a FunctionRegistry into the JS engine.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEngineOption {
	return func(cfg *jsEngineConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSEngineOptions(opts []JSEngineOption) jsEngineConfig {
	cfg := jsEngineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
