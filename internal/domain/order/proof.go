package order

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
)

// Proof is a payment-proof image.
type Proof struct {
	ContentType string
	Data        []byte
}

// ProofLimits bounds accepted artifact sizes.
type ProofLimits struct {
	MinBytes int
	MaxBytes int
}

// DefaultProofLimits rejects truncated uploads and oversized photos.
var DefaultProofLimits = ProofLimits{MinBytes: 1 << 10, MaxBytes: 5 << 20}

// declared content type -> format name reported by image.DecodeConfig.
var proofFormats = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/gif":  "gif",
}

// CheckProof runs the minimal integrity check on p: non-empty, declared as a
// supported image type, within size limits, and with a header that decodes
// as the declared format.
func CheckProof(p Proof, limits ProofLimits) error {
	if len(p.Data) == 0 {
		return &InvalidArtifactError{Reason: "empty upload"}
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(p.ContentType, ";", 2)[0]))
	if !strings.HasPrefix(contentType, "image/") {
		return &InvalidArtifactError{Reason: "not declared as an image"}
	}
	format, ok := proofFormats[contentType]
	if !ok {
		return &InvalidArtifactError{Reason: fmt.Sprintf("unsupported image type %s", contentType)}
	}

	if len(p.Data) < limits.MinBytes {
		return &InvalidArtifactError{Reason: fmt.Sprintf("image smaller than %d bytes", limits.MinBytes)}
	}
	if limits.MaxBytes > 0 && len(p.Data) > limits.MaxBytes {
		return &InvalidArtifactError{Reason: fmt.Sprintf("image larger than %d bytes", limits.MaxBytes)}
	}

	cfg, got, err := image.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return &InvalidArtifactError{Reason: "image cannot be decoded"}
	}
	if got != format {
		return &InvalidArtifactError{Reason: fmt.Sprintf("declared %s but content is %s", contentType, got)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return &InvalidArtifactError{Reason: "image has no pixels"}
	}
	return nil
}

// Normalize returns p with a canonical content type.
func (p Proof) Normalize() Proof {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(p.ContentType, ";", 2)[0]))
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return Proof{ContentType: ct, Data: p.Data}
}
