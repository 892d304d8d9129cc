package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFlow   = "flowfilter/flow/v1"
	DomainBranch = "flowfilter/branch/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FlowHash computes the content hash of a flow. Object keys of the
// preserved fields are emitted sorted, so equal flows hash equally.
func FlowHash(f Flow) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("FlowHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFlow, data), nil
}

// BranchHash computes the content hash of a single list branch.
func BranchHash(lb ListBranch) (string, error) {
	data, err := json.Marshal(lb)
	if err != nil {
		return "", fmt.Errorf("BranchHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBranch, data), nil
}

// MustFlowHash is like FlowHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFlowHash(f Flow) string {
	h, err := FlowHash(f)
	if err != nil {
		panic(err)
	}
	return h
}
