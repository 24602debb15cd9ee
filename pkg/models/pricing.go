package models

// ModelPricing holds USD prices per one million tokens for a model.
type ModelPricing struct {
	Model            string  `yaml:"model" json:"model"`
	PromptPerMTok    float64 `yaml:"prompt_per_mtok" json:"prompt_per_mtok"`
	CompletePerMTok  float64 `yaml:"completion_per_mtok" json:"completion_per_mtok"`
}
