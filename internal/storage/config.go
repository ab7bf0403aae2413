package storage

import (
	"encoding/json"
	"fmt"
)

// FSConfig holds filesystem backend settings.
type FSConfig struct {
	Root string `json:"root"`
}

// S3Config holds S3 backend settings. When DisableAmbientConfig is set,
// only the static credentials given here are used and no shared AWS
// config files or instance metadata are consulted.
type S3Config struct {
	AccessKeyID          string `json:"accessKeyId"`
	SecretAccessKey      string `json:"secretAccessKey"`
	Region               string `json:"region"`
	Bucket               string `json:"bucket"`
	Endpoint             string `json:"endpoint,omitempty"`
	DisableAmbientConfig bool   `json:"disableAmbientConfig"`
}

// BackendConfig is the tagged union of backend configurations. Exactly
// one variant is non-nil. It serializes as a single-key JSON object,
// e.g. {"fs":{"root":"/data"}} or {"s3":{...}}, which is the form
// persisted in the storage_backends table.
type BackendConfig struct {
	FS *FSConfig
	S3 *S3Config
}

// Kind returns the variant tag ("fs" or "s3").
func (c BackendConfig) Kind() string {
	switch {
	case c.FS != nil:
		return "fs"
	case c.S3 != nil:
		return "s3"
	default:
		return ""
	}
}

// Validate checks that exactly one variant is set and carries the
// required fields.
func (c BackendConfig) Validate() error {
	if c.FS != nil && c.S3 != nil {
		return fmt.Errorf("backend config has multiple variants")
	}
	switch {
	case c.FS != nil:
		if c.FS.Root == "" {
			return fmt.Errorf("fs backend config requires a root")
		}
	case c.S3 != nil:
		if c.S3.Region == "" {
			return fmt.Errorf("s3 backend config requires a region")
		}
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 backend config requires a bucket")
		}
	default:
		return fmt.Errorf("backend config has no variant")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c BackendConfig) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.FS != nil:
		return json.Marshal(map[string]*FSConfig{"fs": c.FS})
	default:
		return json.Marshal(map[string]*S3Config{"s3": c.S3})
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *BackendConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse backend config: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("backend config must have exactly one variant, got %d", len(raw))
	}
	for kind, body := range raw {
		switch kind {
		case "fs":
			var fs FSConfig
			if err := json.Unmarshal(body, &fs); err != nil {
				return fmt.Errorf("parse fs config: %w", err)
			}
			*c = BackendConfig{FS: &fs}
		case "s3":
			var s3 S3Config
			if err := json.Unmarshal(body, &s3); err != nil {
				return fmt.Errorf("parse s3 config: %w", err)
			}
			*c = BackendConfig{S3: &s3}
		default:
			return fmt.Errorf("unknown backend kind: %s", kind)
		}
	}
	return nil
}
