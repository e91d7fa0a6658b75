package cmdutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/LegacyCodeHQ/sequencer/program"
)

// PathResolver resolves user paths relative to a base directory, usually --repo.
type PathResolver struct {
	baseDir      string
	allowOutside bool
}

// NewPathResolver anchors relative paths at baseDir, or the working directory when empty.
// Unless allowOutside is set, paths that leave baseDir are rejected.
func NewPathResolver(baseDir string, allowOutside bool) (PathResolver, error) {
	if baseDir == "" {
		baseDir = "."
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return PathResolver{}, fmt.Errorf("failed to resolve base path: %w", err)
	}

	return PathResolver{
		baseDir:      filepath.Clean(resolveSymlinks(absBaseDir)),
		allowOutside: allowOutside,
	}, nil
}

// Resolve returns the absolute form of path.
func (r PathResolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	absPath := filepath.Clean(path)
	if !filepath.IsAbs(path) {
		absPath = filepath.Clean(filepath.Join(r.baseDir, path))
	}
	if r.allowOutside {
		return absPath, nil
	}

	within, err := isWithinBase(r.baseDir, absPath)
	if err != nil {
		return "", err
	}
	if !within {
		return "", fmt.Errorf("path must be within repository: %q", path)
	}
	return absPath, nil
}

// ResolveAll resolves every path, stopping at the first error.
func (r PathResolver) ResolveAll(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		resolved, err := r.Resolve(p)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func isWithinBase(baseDir, targetPath string) (bool, error) {
	targetPath = resolveSymlinks(filepath.Clean(targetPath))

	rel, err := filepath.Rel(baseDir, targetPath)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate path %q: %w", targetPath, err)
	}
	if rel == "." {
		return true, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}
	return !filepath.IsAbs(rel), nil
}

func resolveSymlinks(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

// SourceArgs anchors file arguments at --repo. Arguments are left alone when no repository is
// given or when they name paths inside a commit.
func SourceArgs(repo, commit string, args []string) ([]string, error) {
	if repo == "" || commit != "" {
		return args, nil
	}
	resolver, err := NewPathResolver(repo, false)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return []string{resolver.baseDir}, nil
	}
	return resolver.ResolveAll(args)
}

// RootArgs resolves the files of declaration references the same way SourceArgs resolves
// source paths, so references name the files the compilation reads.
func RootArgs(repo, commit string, roots []program.Root) ([]program.Root, error) {
	if repo == "" || commit != "" || len(roots) == 0 {
		return roots, nil
	}
	resolver, err := NewPathResolver(repo, false)
	if err != nil {
		return nil, err
	}
	out := make([]program.Root, 0, len(roots))
	for _, root := range roots {
		file, err := resolver.Resolve(root.File)
		if err != nil {
			return nil, err
		}
		out = append(out, program.Root{File: file, Name: root.Name})
	}
	return out, nil
}
