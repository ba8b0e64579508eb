package userdir

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a registry file. Files ending in .yaml or .yml are parsed as
// YAML, anything else as the line-oriented users.cfg format.
func Load(path, base string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("userdir: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f, base)
	default:
		return ParseConfig(f, base)
	}
}

// ParseConfig parses the users.cfg format: one "name password role" triple
// per line, whitespace separated. "#" starts a comment that runs to the end
// of the line; blank lines are skipped.
func ParseConfig(r io.Reader, base string) (*Directory, error) {
	var users []User

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("userdir: line %d: want \"name password role\", got %d fields", lineno, len(fields))
		}
		users = append(users, User{Name: fields[0], Password: fields[1], Role: fields[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("userdir: %w", err)
	}

	return New(base, users...)
}

type yamlFile struct {
	Users []User `yaml:"users"`
}

// ParseYAML parses a registry of the form:
//
//	users:
//	  - name: alice
//	    password: secret
//	    role: admin
//	    root: /srv/ftp/alice   # optional
func ParseYAML(r io.Reader, base string) (*Directory, error) {
	var doc yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("userdir: decoding yaml: %w", err)
	}
	return New(base, doc.Users...)
}
