// Package userdir loads the user registry served by ftpd.
//
// A Directory is built once at startup and never mutated afterwards, so it
// can be shared by every session without locking. Sessions keep their own
// copy of per-connection state such as the working directory.
package userdir

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateUser is returned when the same name is registered twice.
var ErrDuplicateUser = errors.New("userdir: duplicate user")

// User is one registry entry. Root is an absolute host path that becomes
// "/" for the user's sessions.
type User struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Root     string `yaml:"root"`
}

// CheckPassword reports whether pass matches the stored password.
// Stored values that look like bcrypt hashes are verified with bcrypt;
// anything else is compared in constant time.
func (u User) CheckPassword(pass string) bool {
	if isBcryptHash(u.Password) {
		return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(u.Password), []byte(pass)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Directory is an immutable name -> User index.
type Directory struct {
	users map[string]User
}

// New builds a Directory from users. Entries without a Root get
// filepath.Join(base, name). Names must be unique and non-empty.
func New(base string, users ...User) (*Directory, error) {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		if u.Name == "" {
			return nil, errors.New("userdir: user with empty name")
		}
		if strings.ContainsAny(u.Name, `/\`) || u.Name == "." || u.Name == ".." {
			return nil, fmt.Errorf("userdir: invalid user name %q", u.Name)
		}
		if _, ok := d.users[u.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUser, u.Name)
		}
		if u.Root == "" {
			u.Root = filepath.Join(base, u.Name)
		}
		root, err := filepath.Abs(u.Root)
		if err != nil {
			return nil, fmt.Errorf("userdir: resolving root for %s: %w", u.Name, err)
		}
		u.Root = root
		d.users[u.Name] = u
	}
	return d, nil
}

// Lookup returns a copy of the named user.
func (d *Directory) Lookup(name string) (User, bool) {
	if d == nil {
		return User{}, false
	}
	u, ok := d.users[name]
	return u, ok
}

// Len returns the number of registered users.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.users)
}

// Names returns the registered user names in sorted order.
func (d *Directory) Names() []string {
	names := make([]string, 0, d.Len())
	for name := range d.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnsureHomes creates every missing user root with mode 0755.
func (d *Directory) EnsureHomes() error {
	for _, name := range d.Names() {
		u := d.users[name]
		if err := os.MkdirAll(u.Root, 0o755); err != nil {
			return fmt.Errorf("userdir: creating home for %s: %w", name, err)
		}
	}
	return nil
}
