package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rsned/cookdb/internal/cooking/engine"
	"github.com/rsned/cookdb/pkg/cooking"
)

// ToolDefinition describes an MCP tool.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema JSONSchema `json:"inputSchema"`
}

// JSONSchema is a simplified JSON Schema representation.
type JSONSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a schema property.
type Property struct {
	Type                 string              `json:"type,omitempty"`
	Description          string              `json:"description,omitempty"`
	Default              any                 `json:"default,omitempty"`
	Enum                 []string            `json:"enum,omitempty"`
	Minimum              *float64            `json:"minimum,omitempty"`
	Maximum              *float64            `json:"maximum,omitempty"`
	MinItems             *int                `json:"minItems,omitempty"`
	MaxItems             *int                `json:"maxItems,omitempty"`
	Items                *Property           `json:"items,omitempty"`
	Properties           map[string]Property `json:"properties,omitempty"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties *Property           `json:"additionalProperties,omitempty"`
}

func ptr[T any](v T) *T { return &v }

var (
	// errUnknownTool is returned by callTool for a name it does not serve.
	errUnknownTool  = errors.New("unknown tool")
	errBadArguments = errors.New("bad arguments")
)

func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", errBadArguments, err)
	}
	return nil
}

// GetToolDefinitions returns all tool definitions.
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		cookTool(),
		recordLookupTool(),
		findCombinationsTool(),
		searchRecordsTool(),
		databaseInfoTool(),
	}
}

func modifierList(desc string) Property {
	return Property{
		Type:        "array",
		Description: desc,
		Items:       &Property{Type: "string", Enum: cooking.ModAll.Names()},
	}
}

// filterProperty describes cooking.Filter.
func filterProperty() Property {
	return Property{
		Type:        "object",
		Description: "Record filter. Omitted fields match everything.",
		Properties: map[string]Property{
			"min_value": {
				Type:        "integer",
				Description: "Minimum hearts value in quarter hearts",
				Minimum:     ptr(0.0),
				Maximum:     ptr(float64(cooking.MaxValue)),
			},
			"max_value": {
				Type:        "integer",
				Description: "Maximum hearts value in quarter hearts (0 means no limit)",
				Minimum:     ptr(0.0),
				Maximum:     ptr(float64(cooking.MaxValue)),
			},
			"includes_modifier": modifierList("Modifiers the result must carry"),
			"excludes_modifier": modifierList("Modifiers the result must not carry"),
			"include_crit_rng": {
				Type:        "boolean",
				Description: "Also accept results that reach min_value only with a random crit",
			},
		},
	}
}

func ingredientList(desc string) Property {
	return Property{
		Type:        "array",
		Description: desc,
		Items:       &Property{Type: "string"},
		MaxItems:    ptr(5),
	}
}

func cookTool() ToolDefinition {
	return ToolDefinition{
		Name:        "cook",
		Description: "Cook up to five ingredients and return the resulting dish with its hearts value, sell price, crit behaviour and weapon modifiers.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"ingredients": ingredientList("Ingredient names, at most five; duplicates allowed"),
			},
			Required: []string{"ingredients"},
		},
	}
}

func recordLookupTool() ToolDefinition {
	return ToolDefinition{
		Name:        "record_lookup",
		Description: "Read the stored database record for a combination, by rank or by ingredient list, and check it against a fresh cook.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"rank": {
					Type:        "integer",
					Description: "Combination rank in the database",
					Minimum:     ptr(0.0),
				},
				"ingredients": ingredientList("Ingredient names (alternative to rank)"),
			},
		},
	}
}

func findCombinationsTool() ToolDefinition {
	return ToolDefinition{
		Name:        "find_combinations",
		Description: "Enumerate every way to fill a partial recipe and return the combinations whose result passes the filter, best value first.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"slots": {
					Type:        "array",
					Description: "Slot constraints; total count must not exceed five",
					Items: &Property{
						Type: "object",
						Properties: map[string]Property{
							"ingredients": {
								Type:        "array",
								Description: "Alternatives for these slots",
								Items:       &Property{Type: "string"},
							},
							"count": {
								Type:        "integer",
								Description: "Number of slots (default 1)",
								Minimum:     ptr(1.0),
								Maximum:     ptr(5.0),
							},
							"mode": {
								Type:        "string",
								Description: "How multi-count slots pick alternatives",
								Enum:        []string{"", string(cooking.SlotSame), string(cooking.SlotDifferent)},
							},
						},
						Required: []string{"ingredients"},
					},
				},
				"filter": filterProperty(),
				"limit": {
					Type:        "integer",
					Description: "Maximum results",
					Default:     engine.DefaultLimit,
					Minimum:     ptr(1.0),
					Maximum:     ptr(float64(engine.MaxLimit)),
				},
			},
			Required: []string{"slots"},
		},
	}
}

func searchRecordsTool() ToolDefinition {
	return ToolDefinition{
		Name:        "search_records",
		Description: "Scan the built database for records passing the filter, skipping chunks the index rules out. Results are in rank order; pass next_rank back as start_rank to continue.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"filter": filterProperty(),
				"start_rank": {
					Type:        "integer",
					Description: "Rank to resume from",
					Minimum:     ptr(0.0),
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum results",
					Default:     engine.DefaultLimit,
					Minimum:     ptr(1.0),
					Maximum:     ptr(float64(engine.MaxLimit)),
				},
			},
			Required: []string{"filter"},
		},
	}
}

func databaseInfoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "database_info",
		Description: "Describe the catalog and attached database: group count, record count, chunk layout and the last build.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"include_chunks": {
					Type:        "boolean",
					Description: "Include the per-chunk index",
				},
			},
		},
	}
}

// callTool dispatches a tool call to its handler.
func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "cook":
		return s.toolCook(ctx, args)
	case "record_lookup":
		return s.toolRecordLookup(ctx, args)
	case "find_combinations":
		return s.toolFindCombinations(ctx, args)
	case "search_records":
		return s.toolSearchRecords(ctx, args)
	case "database_info":
		return s.toolDatabaseInfo(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

func (s *Server) toolCook(ctx context.Context, args json.RawMessage) (any, error) {
	var req cooking.CookRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.engine.Cook(ctx, req)
}

func (s *Server) toolRecordLookup(ctx context.Context, args json.RawMessage) (any, error) {
	var req cooking.RecordLookupRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.engine.RecordLookup(ctx, req)
}

func (s *Server) toolFindCombinations(ctx context.Context, args json.RawMessage) (any, error) {
	var req cooking.FindCombinationsRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.engine.FindCombinations(ctx, req)
}

func (s *Server) toolSearchRecords(ctx context.Context, args json.RawMessage) (any, error) {
	var req cooking.SearchRecordsRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.engine.SearchRecords(ctx, req)
}

func (s *Server) toolDatabaseInfo(ctx context.Context, args json.RawMessage) (any, error) {
	var req cooking.DatabaseInfoRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.engine.DatabaseInfo(ctx, req)
}
