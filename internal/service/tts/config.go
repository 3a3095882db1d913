package tts

// Config 语音合成参数。
type Config struct {
	Language string  `mapstructure:"language" json:"language"`
	Rate     float64 `mapstructure:"rate" json:"rate"`
	Pitch    float64 `mapstructure:"pitch" json:"pitch"`
	Volume   float64 `mapstructure:"volume" json:"volume"`
}

// DefaultConfig 返回默认中文语音参数。
func DefaultConfig() Config {
	return Config{Language: "zh-CN", Rate: 1, Pitch: 1, Volume: 1}
}

// Merge overlays the non-zero fields of other.
func (c Config) Merge(other Config) Config {
	if other.Language != "" {
		c.Language = other.Language
	}
	if other.Rate > 0 {
		c.Rate = other.Rate
	}
	if other.Pitch > 0 {
		c.Pitch = other.Pitch
	}
	if other.Volume > 0 {
		c.Volume = other.Volume
	}
	return c
}

// ConfigUpdate 是部分更新，nil 字段保持不变。
type ConfigUpdate struct {
	Language *string  `json:"language,omitempty"`
	Rate     *float64 `json:"rate,omitempty"`
	Pitch    *float64 `json:"pitch,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
}

// Apply returns c with the set fields of u applied.
func (c Config) Apply(u ConfigUpdate) Config {
	if u.Language != nil {
		c.Language = *u.Language
	}
	if u.Rate != nil {
		c.Rate = *u.Rate
	}
	if u.Pitch != nil {
		c.Pitch = *u.Pitch
	}
	if u.Volume != nil {
		c.Volume = *u.Volume
	}
	return c
}
