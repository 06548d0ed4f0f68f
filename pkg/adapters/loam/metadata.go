package loam

// FlowMetadata is the frontmatter of a flow document. The document body is
// the script itself.
// It uses "mapstructure" tags to match standard Frontmatter/YAML keys.
type FlowMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`

	// Intents are the labels offered to the intent normalizer for this flow,
	// usually the flow's Branch keywords.
	Intents []string `json:"intents" mapstructure:"intents"`

	// Strict rejects the flow when its script has error diagnostics.
	Strict bool `json:"strict" mapstructure:"strict"`
}

// Document is a flow as stored in the library.
type Document struct {
	FlowMetadata
	Script string `json:"script"`
}
