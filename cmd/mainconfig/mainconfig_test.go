package mainconfig

import (
	"context"
	"testing"

	appconfig "github.com/wolfman30/clinic-rx/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:          "eu-west-1",
		AWSAccessKeyID:     "test-key",
		AWSSecretAccessKey: "test-secret",
	}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg.Region != "eu-west-1" {
		t.Fatalf("expected region eu-west-1, got %q", awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test-key" {
		t.Fatalf("expected static access key, got %q", creds.AccessKeyID)
	}
}
