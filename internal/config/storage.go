package config

import "os"

// S3Config points at the S3-compatible bucket that stores machine attachments.
// Endpoint and path-style addressing support MinIO in development; with empty
// credentials the SDK's default chain (IAM role, env vars) is used. An empty
// bucket name disables the upload endpoint.
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string // base of the public URLs returned to clients
}

// LoadS3Config reads object storage settings from the environment.
func LoadS3Config() S3Config {
	return S3Config{
		Endpoint:      os.Getenv("S3_ENDPOINT"),
		Region:        getenv("S3_REGION", "us-east-1"),
		Bucket:        os.Getenv("S3_BUCKET"),
		AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		SecretKey:     os.Getenv("S3_SECRET_KEY"),
		UsePathStyle:  envBool("S3_USE_PATH_STYLE", false),
		PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
	}
}
