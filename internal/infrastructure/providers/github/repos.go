package github

import (
	"fmt"
	"strings"
)

// RepoRef names a repository and optionally the branch to walk.
type RepoRef struct {
	Owner  string `yaml:"owner"`
	Name   string `yaml:"name"`
	Branch string `yaml:"branch"`
}

// FullName returns "owner/name".
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoRef parses "owner/name" or "owner/name@branch".
func ParseRepoRef(s string) (RepoRef, error) {
	s = strings.TrimSpace(s)
	path, branch, _ := strings.Cut(s, "@")
	owner, name, ok := strings.Cut(path, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("invalid repository %q, want owner/name[@branch]", s)
	}
	return RepoRef{Owner: owner, Name: name, Branch: strings.TrimSpace(branch)}, nil
}

// ParseRepoRefs parses a list, skipping blank entries.
func ParseRepoRefs(values []string) ([]RepoRef, error) {
	refs := make([]RepoRef, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		ref, err := ParseRepoRef(v)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
