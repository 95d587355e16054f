package coursebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidPayload is returned when a backend answer does not match the expected shape.
var ErrInvalidPayload = errors.New("course backend returned an unexpected payload")

const tpSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "tp": {
      "type": "object",
      "required": ["no"],
      "properties": {
        "id": {"type": ["integer", "null"]},
        "no": {"type": "integer", "minimum": 0},
        "submission": {
          "type": ["object", "null"],
          "properties": {
            "fileName": {"type": ["string", "null"]},
            "pathStorage": {"type": ["string", "null"]},
            "pathFileStructured": {"type": ["string", "null"]}
          }
        },
        "statusStudents": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "id": {"type": ["integer", "null"]},
              "studentId": {"type": ["integer", "null"]},
              "tpId": {"type": ["integer", "null"]}
            }
          }
        }
      }
    }
  },
  "oneOf": [
    {"$ref": "#/definitions/tp"},
    {"type": "array", "items": {"$ref": "#/definitions/tp"}}
  ]
}`

var tpSchema = jsonschema.MustCompileString("tp.schema.json", tpSchemaSource)

// doValidated decodes the answer, checks it against schema and unmarshals it into out.
func (c *Client) doValidated(ctx context.Context, req request, schema *jsonschema.Schema, out interface{}) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.operation, err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return fmt.Errorf("decode %s response: %w", req.operation, err)
	}
	if err := schema.Validate(document); err != nil {
		c.logger.Warn().Err(err).Str("operation", req.operation).Msg("course backend payload rejected")
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, req.operation, err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.operation, err)
	}
	return nil
}
