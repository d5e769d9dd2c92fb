package ai

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// schemaItem documents the shape a model must return for each suggestion.
type schemaItem struct {
	ProjectID        string           `json:"projectId"`
	ProjectName      string           `json:"projectName"`
	ActivityTypeID   string           `json:"activityTypeId"`
	ActivityTypeName string           `json:"activityTypeName"`
	Hours            float64          `json:"hours" jsonschema:"minimum=0.5,multipleOf=0.5"`
	Description      string           `json:"description" jsonschema_description:"Short client-facing description"`
	DescriptionEn    string           `json:"descriptionEn,omitempty" jsonschema_description:"The description in English"`
	InternalNote     string           `json:"internalNote" jsonschema_description:"More detailed internal note"`
	Reasoning        string           `json:"reasoning" jsonschema_description:"Why this line was suggested"`
	Confidence       string           `json:"confidence" jsonschema:"enum=high,enum=medium,enum=low"`
	SourceActivities []SourceActivity `json:"sourceActivities"`
}

var (
	schemaOnce sync.Once
	schemaText string
)

// SchemaHint returns the JSON schema of the expected response array.
func SchemaHint() string {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{DoNotReference: true, Anonymous: true, ExpandedStruct: true}
		item := r.Reflect(&schemaItem{})
		item.Version = ""
		arr := &jsonschema.Schema{
			Version: jsonschema.Version,
			Type:    "array",
			Items:   item,
		}
		data, err := json.MarshalIndent(arr, "", "  ")
		if err != nil {
			schemaText = `{"type":"array"}`
			return
		}
		schemaText = string(data)
	})
	return schemaText
}
