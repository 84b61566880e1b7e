package lgcp

import "time"

// Config is the full pipeline configuration file.
type Config struct {
	Frame     string            `yaml:"frame" json:"frame"`
	Mesh      MeshSettings      `yaml:"mesh" json:"mesh"`
	Field     FieldSettings     `yaml:"field" json:"field"`
	Engine    EngineSettings    `yaml:"engine" json:"engine"`
	Predictor PredictorSettings `yaml:"predictor" json:"predictor"`
	Residuals ResidualSettings  `yaml:"residuals" json:"residuals"`
	MQTT      *MQTTConfig       `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
}

// MeshSettings mirrors MeshConfig in the configuration file.
type MeshSettings struct {
	InnerMaxEdge float64 `yaml:"innerMaxEdge" json:"innerMaxEdge"`
	OuterMaxEdge float64 `yaml:"outerMaxEdge" json:"outerMaxEdge"`
	Cutoff       float64 `yaml:"cutoff" json:"cutoff"`
}

// MeshConfig converts the settings to the builder's config.
func (m MeshSettings) MeshConfig() MeshConfig {
	return MeshConfig{
		InnerMaxEdge: m.InnerMaxEdge,
		OuterMaxEdge: m.OuterMaxEdge,
		Cutoff:       m.Cutoff,
	}
}

// FieldSettings configures the latent field term.
type FieldSettings struct {
	Alpha      int            `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	RangePrior LogNormalPrior `yaml:"rangePrior" json:"rangePrior"`
	SigmaPrior LogNormalPrior `yaml:"sigmaPrior" json:"sigmaPrior"`
}

// FieldConfig converts the settings to the model term config.
func (f FieldSettings) FieldConfig() FieldConfig {
	alpha := f.Alpha
	if alpha == 0 {
		alpha = 2
	}
	return FieldConfig{Alpha: alpha, RangePrior: f.RangePrior, SigmaPrior: f.SigmaPrior}
}

// EngineSettings locates the external inference engine.
type EngineSettings struct {
	URL            string `yaml:"url" json:"url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`
	Threads        int    `yaml:"threads,omitempty" json:"threads,omitempty"`
}

// Timeout returns the configured fit deadline, or the default.
func (e EngineSettings) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return DefaultFitTimeout
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// PredictorSettings controls posterior sampling.
type PredictorSettings struct {
	Samples int   `yaml:"samples,omitempty" json:"samples,omitempty"`
	Seed    int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// PredictorConfig converts the settings to the sampler's config.
func (p PredictorSettings) PredictorConfig() PredictorConfig {
	cfg := DefaultPredictorConfig()
	if p.Samples > 0 {
		cfg.Samples = p.Samples
	}
	if p.Seed != 0 {
		cfg.Seed = p.Seed
	}
	return cfg
}

// ResidualSettings sets the diagnostic partition grid.
type ResidualSettings struct {
	Rows int `yaml:"rows,omitempty" json:"rows,omitempty"`
	Cols int `yaml:"cols,omitempty" json:"cols,omitempty"`
}

// Shape returns the grid shape with an 8x8 default.
func (r ResidualSettings) Shape() (rows, cols int) {
	rows, cols = r.Rows, r.Cols
	if rows <= 0 {
		rows = 8
	}
	if cols <= 0 {
		cols = 8
	}
	return rows, cols
}

// MQTTConfig holds MQTT connection settings for the summary publisher.
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}
