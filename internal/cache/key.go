// Package cache provides the LRU+TTL policy cache and its composite key scheme.
package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is a configuration error raised when a composite key string
// does not follow the tenant[:repo[:branch]]:policyID wire format.
var ErrInvalidKey = errors.New("invalid cache key")

// Key is the parsed form of a composite cache key. TenantID and PolicyID are
// required; Repo and Branch narrow the key and Branch requires Repo.
type Key struct {
	TenantID string
	Repo     string
	Branch   string
	PolicyID string
}

// String renders the key in its colon-delimited wire format:
// tenant[:repo[:branch]]:policyID, optional segments omitted when absent.
// The format round-trips exactly through ParseKey.
func (k Key) String() string {
	parts := make([]string, 0, 4)
	parts = append(parts, k.TenantID)
	if k.Repo != "" {
		parts = append(parts, k.Repo)
		if k.Branch != "" {
			parts = append(parts, k.Branch)
		}
	}
	parts = append(parts, k.PolicyID)
	return strings.Join(parts, ":")
}

// GenerateKey builds the composite key string for the given segments and
// rejects any combination that would not parse back via ParseKey: tenant and
// policy id are required, a branch needs a repo, and no segment may contain
// the delimiter.
func GenerateKey(tenantID, repo, branch, policyID string) (string, error) {
	if tenantID == "" || policyID == "" {
		return "", fmt.Errorf("%w: tenant and policy id are required", ErrInvalidKey)
	}
	if branch != "" && repo == "" {
		return "", fmt.Errorf("%w: branch %q given without a repo", ErrInvalidKey, branch)
	}
	for _, seg := range []string{tenantID, repo, branch, policyID} {
		if strings.Contains(seg, ":") {
			return "", fmt.Errorf("%w: segment %q contains the delimiter", ErrInvalidKey, seg)
		}
	}
	return Key{TenantID: tenantID, Repo: repo, Branch: branch, PolicyID: policyID}.String(), nil
}

// ParseKey parses a composite key string back into its segments.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	for _, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidKey, s)
		}
	}

	switch len(parts) {
	case 2:
		return Key{TenantID: parts[0], PolicyID: parts[1]}, nil
	case 3:
		return Key{TenantID: parts[0], Repo: parts[1], PolicyID: parts[2]}, nil
	case 4:
		return Key{TenantID: parts[0], Repo: parts[1], Branch: parts[2], PolicyID: parts[3]}, nil
	default:
		return Key{}, fmt.Errorf("%w: %q has %d segments (want 2-4)", ErrInvalidKey, s, len(parts))
	}
}

// tenantPrefix is the prefix shared by every key belonging to a tenant.
func tenantPrefix(tenantID string) string {
	return tenantID + ":"
}

// repoPrefix is the prefix shared by every key belonging to a tenant's repo.
func repoPrefix(tenantID, repo string) string {
	return tenantID + ":" + repo + ":"
}
