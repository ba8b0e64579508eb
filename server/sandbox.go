package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// sandbox is a session's private view of its user's directory tree.
//
// Paths handed to the sandbox are virtual: "/" is the user's root and the
// working directory is tracked as a cleaned, slash-separated virtual path.
// Resolution is lexical, so ".." can never climb above "/". When the sandbox
// is backed by the host filesystem, every existing path component is also
// checked so a symlink cannot lead outside the root.
type sandbox struct {
	fs       afero.Fs
	realRoot string // host root with symlinks resolved; empty for in-memory trees
	cwd      string
}

// newSandbox returns a sandbox over an arbitrary afero filesystem whose "/"
// is the user root. No symlink checks are performed.
func newSandbox(fsys afero.Fs) *sandbox {
	return &sandbox{fs: fsys, cwd: "/"}
}

// newOSSandbox confines a session to root on the host filesystem.
func newOSSandbox(root string) (*sandbox, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolving user root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("user root %s: %w", root, errNotDirectory)
	}
	return &sandbox{
		fs:       afero.NewBasePathFs(afero.NewOsFs(), resolved),
		realRoot: resolved,
		cwd:      "/",
	}, nil
}

// resolve maps a client supplied path to a virtual path inside the sandbox.
// Relative paths start from the working directory, absolute ones from the
// user root. An empty argument means the working directory.
func (sb *sandbox) resolve(p string) (string, error) {
	if p == "" {
		return sb.cwd, nil
	}

	var stack []string
	if !strings.HasPrefix(p, "/") {
		stack = splitVirtual(sb.cwd)
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return "", ErrOutsideSandbox
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}

	v := "/" + strings.Join(stack, "/")
	if err := sb.checkLinks(v); err != nil {
		return "", err
	}
	return v, nil
}

func splitVirtual(v string) []string {
	v = strings.Trim(v, "/")
	if v == "" {
		return nil
	}
	return strings.Split(v, "/")
}

// checkLinks walks the existing components of v on the host and rejects any
// symlink whose target is outside the root or cannot be resolved.
func (sb *sandbox) checkLinks(v string) error {
	if sb.realRoot == "" {
		return nil
	}

	cur := sb.realRoot
	for _, seg := range splitVirtual(v) {
		next := filepath.Join(cur, seg)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(next)
			if err != nil || !within(sb.realRoot, target) {
				return ErrOutsideSandbox
			}
			next = target
		}
		cur = next
	}
	return nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// chdir makes p the working directory. p must be an existing directory.
func (sb *sandbox) chdir(p string) error {
	v, err := sb.resolve(p)
	if err != nil {
		return err
	}
	info, err := sb.fs.Stat(v)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errNotDirectory
	}
	sb.cwd = v
	return nil
}

// cdup moves to the parent directory. At the root it is a no-op.
func (sb *sandbox) cdup() {
	if sb.cwd == "/" {
		return
	}
	sb.cwd = path.Dir(sb.cwd)
}

func (sb *sandbox) stat(p string) (os.FileInfo, error) {
	v, err := sb.resolve(p)
	if err != nil {
		return nil, err
	}
	return sb.fs.Stat(v)
}

// openRead opens a regular file for reading.
func (sb *sandbox) openRead(p string) (afero.File, string, error) {
	if p == "" {
		return nil, "", os.ErrInvalid
	}
	v, err := sb.resolve(p)
	if err != nil {
		return nil, "", err
	}
	f, err := sb.fs.Open(v)
	if err != nil {
		return nil, "", err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", err
	}
	if info.IsDir() {
		f.Close()
		return nil, "", errIsDirectory
	}
	return f, v, nil
}

// openWrite opens p for writing, truncating unless appending.
func (sb *sandbox) openWrite(p string, appending bool) (afero.File, string, error) {
	if p == "" {
		return nil, "", os.ErrInvalid
	}
	v, err := sb.resolve(p)
	if err != nil {
		return nil, "", err
	}
	if info, err := sb.fs.Stat(v); err == nil && info.IsDir() {
		return nil, "", errIsDirectory
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appending {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := sb.fs.OpenFile(v, flag, 0o644)
	if err != nil {
		return nil, "", err
	}
	return f, v, nil
}

// createUnique creates a new file with a generated name in the working
// directory and returns it together with its virtual path.
func (sb *sandbox) createUnique() (afero.File, string, error) {
	var lastErr error
	for i := 0; i < 5; i++ {
		name := "ftp-" + uuid.NewString()
		v, err := sb.resolve(name)
		if err != nil {
			return nil, "", err
		}
		f, err := sb.fs.OpenFile(v, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, v, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

// list returns the entries of a directory, or the single entry for a file.
func (sb *sandbox) list(p string) ([]os.FileInfo, error) {
	v, err := sb.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := sb.fs.Stat(v)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []os.FileInfo{info}, nil
	}
	return afero.ReadDir(sb.fs, v)
}

// remove deletes a regular file. Directories are refused.
func (sb *sandbox) remove(p string) (string, error) {
	v, err := sb.resolve(p)
	if err != nil {
		return "", err
	}
	info, err := sb.fs.Stat(v)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", errIsDirectory
	}
	return v, sb.fs.Remove(v)
}

// removeDir deletes an empty directory. The root itself cannot be removed.
func (sb *sandbox) removeDir(p string) (string, error) {
	v, err := sb.resolve(p)
	if err != nil {
		return "", err
	}
	if v == "/" {
		return "", os.ErrPermission
	}
	info, err := sb.fs.Stat(v)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", errNotDirectory
	}
	entries, err := afero.ReadDir(sb.fs, v)
	if err != nil {
		return "", err
	}
	if len(entries) > 0 {
		return "", fmt.Errorf("directory not empty: %w", os.ErrExist)
	}
	return v, sb.fs.Remove(v)
}

// mkdir creates a directory and returns its virtual path.
func (sb *sandbox) mkdir(p string) (string, error) {
	v, err := sb.resolve(p)
	if err != nil {
		return "", err
	}
	if v == "/" {
		return "", os.ErrExist
	}
	if _, err := sb.fs.Stat(v); err == nil {
		return "", os.ErrExist
	}
	return v, sb.fs.Mkdir(v, 0o755)
}

// rename moves the virtual path from (already resolved) to p.
func (sb *sandbox) rename(from, p string) (string, error) {
	to, err := sb.resolve(p)
	if err != nil {
		return "", err
	}
	if from == "/" || to == "/" {
		return "", os.ErrPermission
	}
	return to, sb.fs.Rename(from, to)
}
