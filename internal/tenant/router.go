// Package tenant routes (tenant scope, source type) pairs to vector index
// namespaces.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SourceType identifies where indexed content originated.
type SourceType string

const (
	// SourceSlack is short-form conversational content.
	SourceSlack SourceType = "slack"
	// SourceDocs is uploaded files and notes.
	SourceDocs SourceType = "docs"
)

// sourceOrder fixes the namespace order for multi-source requests so
// downstream fusion has a stable tie-break input order.
var sourceOrder = []SourceType{SourceSlack, SourceDocs}

// sharedToken is the namespace prefix for the shared default scope. Users
// without a dedicated project all land here, so every query and delete
// against a shared namespace must additionally filter by project id.
const sharedToken = "shared"

// Common errors.
var (
	ErrInvalidSourceType = errors.New("invalid source type")
	ErrInvalidProjectID  = errors.New("invalid project ID")
)

var identifierPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Scope identifies whose data a namespace holds.
type Scope struct {
	// ProjectID is empty for the shared default scope.
	ProjectID string
}

// SharedScope returns the scope shared across users without a dedicated
// project.
func SharedScope() Scope {
	return Scope{}
}

// ProjectScope returns a scope isolated to one project.
func ProjectScope(projectID string) Scope {
	return Scope{ProjectID: projectID}
}

// IsShared reports whether this is the shared default scope.
func (s Scope) IsShared() bool {
	return s.ProjectID == ""
}

// token returns the namespace prefix for this scope.
func (s Scope) token() string {
	if s.IsShared() {
		return sharedToken
	}
	return "proj_" + s.ProjectID
}

// ValidSourceType reports whether t is a known source type.
func ValidSourceType(t SourceType) bool {
	return t == SourceSlack || t == SourceDocs
}

// NamespaceFor returns the single namespace holding data for the given
// source type under the given scope. Naming is deterministic:
// `{scope-token}_{sourceType}`.
func NamespaceFor(source SourceType, scope Scope) (string, error) {
	if !ValidSourceType(source) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceType, source)
	}
	if !scope.IsShared() && !identifierPattern.MatchString(strings.ToLower(scope.ProjectID)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectID, scope.ProjectID)
	}
	return scope.token() + "_" + string(source), nil
}

// NamespacesFor returns one namespace per requested source type, in a fixed
// order (slack before docs) regardless of the order of the input.
func NamespacesFor(sources []SourceType, scope Scope) ([]string, error) {
	requested := make(map[SourceType]bool, len(sources))
	for _, s := range sources {
		if !ValidSourceType(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSourceType, s)
		}
		requested[s] = true
	}

	var namespaces []string
	for _, s := range sourceOrder {
		if !requested[s] {
			continue
		}
		ns, err := NamespaceFor(s, scope)
		if err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, nil
}

// InferSourceType recovers the source type from a namespace name by suffix.
// The second return is false when the namespace does not follow the naming
// scheme.
func InferSourceType(namespace string) (SourceType, bool) {
	for _, s := range sourceOrder {
		if strings.HasSuffix(namespace, "_"+string(s)) {
			return s, true
		}
	}
	return "", false
}

// IsShared reports whether a namespace name belongs to the shared default
// scope.
func IsShared(namespace string) bool {
	return strings.HasPrefix(namespace, sharedToken+"_")
}
