package decision

import (
	"github.com/invopop/jsonschema"

	"github.com/lokutor-ai/meeting-intel/internal/trackerconfig"
)

// Entity mirrors the §3 DecisionItem.entities element.
type Entity struct {
	Type  string `json:"type" jsonschema:"enum=person,enum=company,enum=product,enum=date,enum=amount,enum=document,enum=topic"`
	Label string `json:"label"`
	ID    string `json:"id"`
}

// CaptureMeetingItemArgs is the Go type the LLM's forced tool call decodes
// into; its jsonschema tags generate the tool parameter schema via
// invopop/jsonschema so the schema and the decode type never drift apart
// (§4.8 step 5 / §4.9).
type CaptureMeetingItemArgs struct {
	Type       string   `json:"type"`
	Summary    string   `json:"summary" jsonschema:"description=One sentence summary of the captured item."`
	Speaker    string   `json:"speaker,omitempty"`
	Confidence float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Entities   []Entity `json:"entities"`
}

const toolName = "capture_meeting_item"

// BuildToolSchema generates the JSON schema for capture_meeting_item's
// parameters, with the "type" enum restricted to the tracker's currently
// enabled categories plus "no_match" (§4.9).
func BuildToolSchema(cfg trackerconfig.Config) *jsonschema.Schema {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&CaptureMeetingItemArgs{})

	if typeProp, ok := schema.Properties.Get("type"); ok {
		typeProp.Enum = nil
		for _, t := range cfg.AllowedTypes() {
			typeProp.Enum = append(typeProp.Enum, t)
		}
	}
	schema.Title = toolName
	schema.Description = "Capture a single meeting item (decision, action item, etc.) from the current transcript window, or report no_match."
	return schema
}
