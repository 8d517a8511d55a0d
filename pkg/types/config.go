package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	DBMaxConns      int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"30"`
	PublicURL       string `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`

	// Storage
	StorageMethod    string `envconfig:"STORAGE_METHOD" default:"local"` // local | s3
	LocalStoragePath string `envconfig:"LOCAL_STORAGE_PATH" default:"./data/evidence"`

	// Keys for the local file URL tokens (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	LocalURLHashKey  string `envconfig:"LOCAL_URL_HASH_KEY"`  // 32 or 64 bytes
	LocalURLBlockKey string `envconfig:"LOCAL_URL_BLOCK_KEY"` // 16, 24, or 32 bytes

	// AWS. Empty credentials fall back to the default provider chain.
	AWSRegion          string `envconfig:"AWS_REGION"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	BucketPrefix       string `envconfig:"BUCKET_PREFIX" default:"exproctor-"`
	PresignTTLSec      uint   `envconfig:"PRESIGN_TTL_SEC" default:"1200"` // 20 minutes
	ContainerWaitSec   uint   `envconfig:"CONTAINER_WAIT_SEC" default:"120"`

	StorageTimeoutSec    uint `envconfig:"STORAGE_TIMEOUT_SEC" default:"15"`
	ModerationTimeoutSec uint `envconfig:"MODERATION_TIMEOUT_SEC" default:"10"`

	// AI moderation (Rekognition)
	ModerationEnabled       bool     `envconfig:"MODERATION_ENABLED" default:"false"`
	ModerationEvidenceTypes []string `envconfig:"MODERATION_EVIDENCE_TYPES" default:"webcam"`

	// Auth. When empty the API is unauthenticated and the user id comes from the request.
	JWKSURL string `envconfig:"JWKS_URL"`
}
