package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

var (
	NanoidSize     = 32
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// bucket names only allow lowercase letters, digits and hyphens
	lowerAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

func NanoIDSize(size int) string {
	if size == 0 {
		size = NanoidSize
	}

	return gonanoid.MustGenerate(nanoidAlphabet, size)
}

// LowerNanoID returns an ID that is safe to use inside S3 bucket names and object keys.
func LowerNanoID(size int) string {
	if size == 0 {
		size = NanoidSize
	}

	return gonanoid.MustGenerate(lowerAlphabet, size)
}
