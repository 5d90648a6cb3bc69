package amvp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/bfussell/libamvp/internal/transport"
	"github.com/bfussell/libamvp/util"
)

// metadataSchema is the Draft-7 schema every operating-environment
// metadata file must satisfy before it is bound to a session.
const metadataSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["modules", "operatingEnvironments"],
  "properties": {
    "modules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "version"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string", "minLength": 1},
          "version": {"type": "string", "minLength": 1},
          "description": {"type": "string"}
        }
      }
    },
    "operatingEnvironments": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string", "minLength": 1},
          "dependencies": {"type": "array"}
        }
      }
    },
    "vendors": {"type": "array"}
  }
}`

// OEMetadata is the parsed operating-environment metadata document
// supporting a formal certification record.
type OEMetadata struct {
	Modules []struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description,omitempty"`
	} `json:"modules"`
	OperatingEnvironments []struct {
		ID           int               `json:"id"`
		Name         string            `json:"name"`
		Dependencies []json.RawMessage `json:"dependencies,omitempty"`
	} `json:"operatingEnvironments"`
	Vendors []json.RawMessage `json:"vendors,omitempty"`

	raw json.RawMessage
}

// IngestOEMetadata loads and validates a metadata file.  The module
// and operating-environment identifiers default to the first entries;
// SetFIPSValidationMetadata overrides them.
func (s *Session) IngestOEMetadata(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read metadata %s: %w", path, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(metadataSchema),
		gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate metadata %s: %w", path, err)
	}
	if !result.Valid() {
		for _, desc := range result.Errors() {
			s.logf(util.LogQuiet, "metadata %s: %s", path, desc)
		}
		return fmt.Errorf("metadata %s does not satisfy the schema", path)
	}

	var md OEMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return fmt.Errorf("parse metadata %s: %w", path, err)
	}
	md.raw = data
	s.oe = &md
	s.moduleID = md.Modules[0].ID
	s.oeID = md.OperatingEnvironments[0].ID
	return nil
}

// SetFIPSValidationMetadata selects which module and operating
// environment the validation should reference.  IngestOEMetadata must
// have run first.
func (s *Session) SetFIPSValidationMetadata(moduleID, oeID int) error {
	if s.oe == nil {
		return fmt.Errorf("no operating-environment metadata ingested")
	}
	if !s.oe.hasModule(moduleID) {
		return fmt.Errorf("metadata defines no module with id %d", moduleID)
	}
	if !s.oe.hasOE(oeID) {
		return fmt.Errorf("metadata defines no operating environment with id %d", oeID)
	}
	s.moduleID = moduleID
	s.oeID = oeID
	return nil
}

func (m *OEMetadata) hasModule(id int) bool {
	for _, mod := range m.Modules {
		if mod.ID == id {
			return true
		}
	}
	return false
}

func (m *OEMetadata) hasOE(id int) bool {
	for _, oe := range m.OperatingEnvironments {
		if oe.ID == id {
			return true
		}
	}
	return false
}

// submitValidation requests a formal validation record for the
// session from the ingested metadata.
func (s *Session) submitValidation(ctx context.Context, c *transport.Client, sessionURL string) error {
	if s.oe == nil {
		return fmt.Errorf("FIPS validation requested but no metadata ingested")
	}
	body := struct {
		ModuleID int             `json:"moduleId"`
		OEID     int             `json:"oeId"`
		Metadata json.RawMessage `json:"metadata"`
	}{s.moduleID, s.oeID, s.oe.raw}

	if err := c.DoJSON(ctx, "validate", http.MethodPut, sessionURL+"/validation", body, nil); err != nil {
		return err
	}
	s.logf(util.LogNormal, "validation requested for module %d on operating environment %d",
		s.moduleID, s.oeID)
	return nil
}
