package config

// Config represents the engine configuration. Contract-level behavior
// never lives here; contracts arrive as JSON payloads.
type Config struct {
	App struct {
		Name    string `mapstructure:"name"`
		Version string `mapstructure:"version"`
	} `mapstructure:"app"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Engine struct {
		Mode        string  `mapstructure:"mode"`
		Step        float64 `mapstructure:"step"`
		ATol        float64 `mapstructure:"atol"`
		RTol        float64 `mapstructure:"rtol"`
		SampleEvery int     `mapstructure:"sample_every"`
		HardContact bool    `mapstructure:"hard_contact"`
	} `mapstructure:"engine"`
	Output struct {
		Dir      string `mapstructure:"dir"`
		Encoding string `mapstructure:"encoding"`
		Plots    bool   `mapstructure:"plots"`
	} `mapstructure:"output"`
}
