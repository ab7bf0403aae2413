package storage

import (
	"encoding/json"
	"testing"
)

func TestBackendConfigMarshalFS(t *testing.T) {
	cfg := BackendConfig{FS: &FSConfig{Root: "/data/music"}}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"fs":{"root":"/data/music"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestBackendConfigRoundTripS3(t *testing.T) {
	cfg := BackendConfig{S3: &S3Config{
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		Bucket:          "music",
		Endpoint:        "http://localhost:9000",
	}}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed BackendConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.S3 == nil {
		t.Fatal("expected s3 config after round trip")
	}
	if parsed.FS != nil {
		t.Error("unexpected fs config after round trip")
	}
	if *parsed.S3 != *cfg.S3 {
		t.Errorf("got %+v, want %+v", *parsed.S3, *cfg.S3)
	}
}

func TestBackendConfigUnmarshalUnknownKind(t *testing.T) {
	var cfg BackendConfig
	if err := json.Unmarshal([]byte(`{"ftp":{"host":"x"}}`), &cfg); err == nil {
		t.Error("expected error for unknown backend kind")
	}
}

func TestBackendConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BackendConfig
		wantErr bool
	}{
		{"fs", BackendConfig{FS: &FSConfig{Root: "/data"}}, false},
		{"fs missing root", BackendConfig{FS: &FSConfig{}}, true},
		{"s3", BackendConfig{S3: &S3Config{Region: "us-east-1", Bucket: "b"}}, false},
		{"s3 missing bucket", BackendConfig{S3: &S3Config{Region: "us-east-1"}}, true},
		{"empty", BackendConfig{}, true},
		{"both set", BackendConfig{FS: &FSConfig{Root: "/data"}, S3: &S3Config{Region: "r", Bucket: "b"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
