package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SeedProfileSchema defines the JSON schema for seed profile files passed
// to the seed command.
var SeedProfileSchema = `{
	"type": "object",
	"properties": {
		"users":     {"type": "integer", "minimum": 0},
		"movies":    {"type": "integer", "minimum": 0},
		"ratings":   {"type": "integer", "minimum": 0},
		"favorites": {"type": "integer", "minimum": 0},
		"clear_first": {"type": "boolean"}
	},
	"additionalProperties": false
}`

// SeedProfile mirrors a validated seed profile file.
type SeedProfile struct {
	Users      int  `json:"users"`
	Movies     int  `json:"movies"`
	Ratings    int  `json:"ratings"`
	Favorites  int  `json:"favorites"`
	ClearFirst bool `json:"clear_first"`
}

// ValidateSeedProfile validates raw JSON against the seed profile schema.
func ValidateSeedProfile(jsonData []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(SeedProfileSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate JSON schema: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("seed profile validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}

// ParseSeedProfile validates and parses a seed profile file.
func ParseSeedProfile(jsonData []byte) (*SeedProfile, error) {
	if err := ValidateSeedProfile(jsonData); err != nil {
		return nil, err
	}

	var profile SeedProfile
	if err := json.Unmarshal(jsonData, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed profile: %w", err)
	}

	return &profile, nil
}
