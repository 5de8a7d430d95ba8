package transport

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pirakansa/compinst/internal/cli/shared"
)

const (
	DigestAlgorithmSHA256 = "sha256"
	DigestAlgorithmSHA1   = "sha1"
	DigestAlgorithmMD5    = "md5"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// VerifyChecksum checks content against an "<algorithm>:<hex>" spec. An
// empty spec always passes.
func VerifyChecksum(content []byte, checksum string) error {
	if checksum == "" {
		return nil
	}
	algorithm, digest, err := ParseChecksumSpec(checksum)
	if err != nil {
		return err
	}
	if algorithm == "" {
		return nil
	}
	computed, err := ComputeDigest(content, algorithm)
	if err != nil {
		return err
	}
	if computed != digest {
		return ErrChecksumMismatch
	}
	return nil
}

func ParseChecksumSpec(value string) (string, string, error) {
	raw := strings.TrimSpace(strings.ToLower(value))
	if raw == "" {
		return "", "", nil
	}
	algorithm, digest, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(algorithm) == "" || strings.TrimSpace(digest) == "" {
		return "", "", fmt.Errorf("invalid checksum format %q", value)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", "", fmt.Errorf("invalid checksum hex %q", value)
	}
	return algorithm, digest, nil
}

// SidecarAlgorithms lists the checksum sidecars a repository may publish
// next to an artifact, strongest first. The sidecar extension is the
// algorithm name.
var SidecarAlgorithms = []string{DigestAlgorithmSHA256, DigestAlgorithmSHA1, DigestAlgorithmMD5}

func ComputeDigest(content []byte, algorithm string) (string, error) {
	switch algorithm {
	case DigestAlgorithmSHA256:
		return shared.SHA256Hex(content), nil
	case DigestAlgorithmSHA1:
		return shared.SHA1Hex(content), nil
	case DigestAlgorithmMD5:
		return shared.MD5Hex(content), nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

// SidecarChecksum turns the content of a checksum sidecar ("<hex>" or
// "<hex>  <file name>") into a checksum spec.
func SidecarChecksum(algorithm string, sidecar []byte) string {
	fields := strings.Fields(string(sidecar))
	if len(fields) == 0 {
		return ""
	}
	return algorithm + ":" + fields[0]
}
