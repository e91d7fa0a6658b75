package frontend

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/LegacyCodeHQ/sequencer/program"
)

// store holds per-file and per-program artefacts shared by the workers.
type store struct {
	mu      sync.RWMutex
	sources map[string][]byte
	trees   map[string]*sitter.Tree
	files   map[string]*fileSummary
	parsed  map[program.ID]map[string]bool
	ir      map[program.ID]map[string]string
	machine map[program.ID]map[string]string
	linked  map[program.ID]string
}

func newStore() *store {
	return &store{
		sources: make(map[string][]byte),
		trees:   make(map[string]*sitter.Tree),
		files:   make(map[string]*fileSummary),
		parsed:  make(map[program.ID]map[string]bool),
		ir:      make(map[program.ID]map[string]string),
		machine: make(map[program.ID]map[string]string),
		linked:  make(map[program.ID]string),
	}
}

func (s *store) putSource(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[path] = content
}

func (s *store) source(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.sources[path]
	return content, ok
}

func (s *store) putTree(path string, tree *sitter.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.trees[path]; ok && old != tree {
		old.Close()
	}
	s.trees[path] = tree
}

// takeTree removes and returns the syntax tree of path. The caller closes it.
func (s *store) takeTree(path string) (*sitter.Tree, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[path]
	delete(s.trees, path)
	return tree, ok
}

// putSummary records a parsed file for prog.
func (s *store) putSummary(prog program.ID, summary *fileSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[summary.Path] = summary
	if s.parsed[prog] == nil {
		s.parsed[prog] = make(map[string]bool)
	}
	s.parsed[prog][summary.Path] = true
}

// parsedSummary returns the summary of path if it was parsed for prog.
func (s *store) parsedSummary(prog program.ID, path string) (*fileSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.parsed[prog][path] {
		return nil, false
	}
	summary, ok := s.files[path]
	return summary, ok
}

func (s *store) summary(path string) (*fileSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.files[path]
	return summary, ok
}

// importPath resolves an import of file to the path of the imported file.
func importPath(file, imp string) string {
	return filepath.ToSlash(filepath.Join(filepath.Dir(file), imp))
}

// unparsedImports lists the files imported by file that have not been parsed for prog yet.
func (s *store) unparsedImports(prog program.ID, file string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.files[file]
	if !ok {
		return nil
	}
	var missing []string
	for _, imp := range summary.Imports {
		if path := importPath(file, imp); !s.parsed[prog][path] {
			missing = append(missing, path)
		}
	}
	return missing
}

// resolve finds the declaration name visible from file: its own declarations first, then those
// of the files it imports, in import order. Imports not yet parsed for prog are not searched.
func (s *store) resolve(prog program.ID, file, name string) (*declInfo, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	own, ok := s.files[file]
	if !ok {
		return nil, "", false
	}
	if d := own.decl(name); d != nil {
		return d, file, true
	}
	for _, imp := range own.Imports {
		path := importPath(file, imp)
		if !s.parsed[prog][path] {
			continue
		}
		if d := s.files[path].decl(name); d != nil {
			return d, path, true
		}
	}
	return nil, "", false
}

func (s *store) putArtefact(table map[program.ID]map[string]string, prog program.ID, key, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if table[prog] == nil {
		table[prog] = make(map[string]string)
	}
	table[prog][key] = text
}

func (s *store) artefact(table map[program.ID]map[string]string, prog program.ID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := table[prog][key]
	return text, ok
}

// link concatenates the machine code of prog in key order.
func (s *store) link(prog program.ID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.machine[prog]))
	for k := range s.machine[prog] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(s.machine[prog][k])
	}
	s.linked[prog] = b.String()
	return s.linked[prog]
}

func (s *store) linkedOutput(prog program.ID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.linked[prog]
	return out, ok
}

// close releases syntax trees that were never parsed.
func (s *store) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, tree := range s.trees {
		tree.Close()
		delete(s.trees, path)
	}
}
