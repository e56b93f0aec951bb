package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// LoadEnv pulls secrets from AWS Secrets Manager (if configured) and then
// loads a local .env file.  Variables already present in the environment
// win over both sources unless AWS_SECRETS_MANAGER_OVERWRITE is true.
func LoadEnv(ctx context.Context, logger *zap.Logger, defaultEnvPath string) {
	if err := loadAWSSecretsIntoEnv(ctx, logger); err != nil {
		logger.Warn("skipping AWS Secrets Manager load", zap.Error(err))
	}
	loadDotEnv(logger, defaultEnvPath)
}

func loadDotEnv(logger *zap.Logger, defaultEnvPath string) {
	envFile := envStr("ENV_FILE_PATH", defaultEnvPath)
	if err := godotenv.Load(envFile); err != nil {
		logger.Debug(".env file not loaded, using process environment",
			zap.String("path", envFile), zap.Error(err))
	}
}

func loadAWSSecretsIntoEnv(ctx context.Context, logger *zap.Logger) error {
	secretID := firstEnv("AWS_SECRETS_MANAGER_SECRET_ID", "AWS_SECRET_ID")
	if secretID == "" {
		return nil
	}
	overwrite := envBool("AWS_SECRETS_MANAGER_OVERWRITE", false)

	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv("AWS_SECRETS_MANAGER_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	out, err := secretsmanager.NewFromConfig(cfg).GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(envStr("AWS_SECRETS_MANAGER_VERSION_STAGE", "AWSCURRENT")),
	})
	if err != nil {
		return fmt.Errorf("fetch secret %s: %w", secretID, err)
	}

	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case len(out.SecretBinary) > 0:
		payload = string(out.SecretBinary)
	default:
		return fmt.Errorf("secret %s has no payload", secretID)
	}

	applied, err := applySecretPayload(payload, overwrite)
	if err != nil {
		return fmt.Errorf("secret %s: %w", secretID, err)
	}
	logger.Info("loaded env vars from AWS Secrets Manager",
		zap.String("secret_id", secretID), zap.Int("applied", applied))
	return nil
}

// applySecretPayload sets every key of a flat JSON object as an environment
// variable and returns how many were applied.
func applySecretPayload(payload string, overwrite bool) (int, error) {
	var kv map[string]any
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, fmt.Errorf("parse secret as JSON: %w", err)
	}
	applied := 0
	for key, val := range kv {
		key = strings.TrimSpace(key)
		if key == "" || (!overwrite && os.Getenv(key) != "") {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("set env %s: %w", key, err)
		}
		applied++
	}
	return applied, nil
}
