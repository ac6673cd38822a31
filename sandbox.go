// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// errUnsafePath is returned if a path would leave the sandbox root.
	errUnsafePath = errors.New("unsafe path")

	// errEmptyName is returned if a name resolves to the sandbox root itself.
	errEmptyName = errors.New("empty name")

	// errSymlinkDenied is returned if symlink extraction is denied by the configuration.
	errSymlinkDenied = errors.New("symlink extraction denied")

	// errOutOfBounds is returned if a carved range does not lie within the source buffer.
	errOutOfBounds = errors.New("range out of bounds")
)

// Sandbox creates files, directories, symlinks and nodes beneath a single root
// directory. Every name is resolved relative to the root, absolute names and
// parent directory segments are clamped so that nothing is created outside of it.
//
// A Sandbox is not safe for concurrent use.
type Sandbox struct {
	root    string
	t       Target
	cfg     *Config
	written int64
}

// NewSandbox creates the root directory on the target configured in cfg and
// returns a [Sandbox] for it.
func NewSandbox(root string, cfg *Config) (*Sandbox, error) {
	if len(root) == 0 {
		return nil, fmt.Errorf("cannot create sandbox: %w", errEmptyName)
	}
	if cfg == nil {
		cfg = NewConfig()
	}

	s := &Sandbox{root: filepath.Clean(root), t: cfg.Target(), cfg: cfg}
	if err := s.t.CreateDir(s.root, cfg.CustomCreateDirMode()); err != nil {
		return nil, fmt.Errorf("cannot create sandbox root: %w", err)
	}
	return s, nil
}

// Root returns the root directory of the sandbox.
func (s *Sandbox) Root() string {
	return s.root
}

// Written returns the number of bytes written into files so far.
func (s *Sandbox) Written() int64 {
	return s.written
}

// CreateDirectory creates the directory name and all missing parents. Existing
// directories are not an error.
func (s *Sandbox) CreateDirectory(name string) error {
	rel, p, err := s.resolve(name, true)
	if err != nil {
		return err
	}
	s.cfg.Logger().Debug("create directory", "name", rel)
	return s.t.CreateDir(p, s.cfg.CustomCreateDirMode())
}

// CarveFile creates the file name with size bytes of data starting at offset.
func (s *Sandbox) CarveFile(name string, data []byte, offset, size int) error {
	if offset < 0 || size < 0 || offset > len(data) || size > len(data)-offset {
		return fmt.Errorf("cannot carve %d bytes at offset %d: %w", size, offset, errOutOfBounds)
	}
	return s.WriteFile(name, data[offset:offset+size])
}

// WriteFile creates the file name with p as content.
func (s *Sandbox) WriteFile(name string, p []byte) error {
	return s.CopyFile(name, bytes.NewReader(p))
}

// CopyFile creates the file name with the content read from src.
func (s *Sandbox) CopyFile(name string, src io.Reader) error {
	rel, p, err := s.prepareFile(name)
	if err != nil {
		return err
	}
	s.cfg.Logger().Debug("create file", "name", rel)
	n, err := s.t.CreateFile(p, src, s.cfg.CustomCreateFileMode(), s.cfg.Overwrite(), s.remaining())
	s.written += n
	return err
}

// AppendToFile appends p to the file name and creates the file if it does not exist.
func (s *Sandbox) AppendToFile(name string, p []byte) error {
	_, dst, err := s.prepareFile(name)
	if err != nil {
		return err
	}
	n, err := s.t.AppendFile(dst, bytes.NewReader(p), s.cfg.CustomCreateFileMode(), s.remaining())
	s.written += n
	return err
}

// CreateSymlink creates the symlink name pointing to target. Targets that are
// absolute or that leave the root are rewritten into a relative target that
// stays within the root.
func (s *Sandbox) CreateSymlink(name string, target string) error {
	if s.cfg.DenySymlinkExtraction() {
		return errSymlinkDenied
	}
	if len(target) == 0 {
		return fmt.Errorf("symlink without target: %w", errEmptyName)
	}

	rel, p, err := s.resolve(name, false)
	if err != nil {
		return err
	}
	if len(rel) == 0 {
		return errEmptyName
	}
	if err := s.createParent(rel); err != nil {
		return err
	}

	linkTarget, err := rerootLinkTarget(rel, target)
	if err != nil {
		return err
	}
	s.cfg.Logger().Debug("create symlink", "name", rel, "target", linkTarget)
	return s.t.CreateSymlink(linkTarget, p, s.cfg.Overwrite())
}

// CreateFifo creates the named pipe name.
func (s *Sandbox) CreateFifo(name string) error {
	return s.createNode(name, fs.ModeNamedPipe, 0, 0, []byte("fifo"))
}

// CreateSocket creates the unix socket name.
func (s *Sandbox) CreateSocket(name string) error {
	return s.createNode(name, fs.ModeSocket, 0, 0, []byte("socket"))
}

// CreateBlockDevice creates the block device name with the given device numbers.
func (s *Sandbox) CreateBlockDevice(name string, major, minor uint32) error {
	return s.createNode(name, fs.ModeDevice, major, minor, []byte(fmt.Sprintf("b %d %d", major, minor)))
}

// CreateCharDevice creates the character device name with the given device numbers.
func (s *Sandbox) CreateCharDevice(name string, major, minor uint32) error {
	return s.createNode(name, fs.ModeDevice|fs.ModeCharDevice, major, minor, []byte(fmt.Sprintf("c %d %d", major, minor)))
}

// MakeExecutable adds execute permission for every class that may read name.
func (s *Sandbox) MakeExecutable(name string) error {
	_, p, err := s.resolve(name, true)
	if err != nil {
		return err
	}
	fi, err := s.t.Lstat(p)
	if err != nil {
		return fmt.Errorf("cannot stat file: %w", err)
	}

	mode := fi.Mode().Perm()
	mode |= (mode & 0444) >> 2
	if mode&0111 == 0 {
		mode |= 0100
	}
	return s.t.Chmod(p, mode)
}

// SetModTime sets the modification time of name. Symlinks are changed
// themselves, not their targets.
func (s *Sandbox) SetModTime(name string, mtime time.Time) error {
	_, p, err := s.resolve(name, false)
	if err != nil {
		return err
	}
	fi, err := s.t.Lstat(p)
	if err != nil {
		return fmt.Errorf("cannot stat file: %w", err)
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		return s.t.Lchtimes(p, mtime, mtime)
	}
	return s.t.Chtimes(p, mtime, mtime)
}

// createNode creates a real node if enabled in the configuration, otherwise
// a placeholder file describing the node.
func (s *Sandbox) createNode(name string, typ fs.FileMode, major, minor uint32, placeholder []byte) error {
	if !s.cfg.DeviceNodes() {
		return s.WriteFile(name, placeholder)
	}

	rel, p, err := s.resolve(name, false)
	if err != nil {
		return err
	}
	if len(rel) == 0 {
		return errEmptyName
	}
	if err := s.createParent(rel); err != nil {
		return err
	}
	s.cfg.Logger().Debug("create node", "name", rel, "type", typ.Type().String(), "major", major, "minor", minor)
	return s.t.CreateNode(p, typ|s.cfg.CustomCreateFileMode().Perm(), major, minor, s.cfg.Overwrite())
}

// prepareFile resolves name for a regular file and creates its parent directory.
func (s *Sandbox) prepareFile(name string) (string, string, error) {
	rel, p, err := s.resolve(name, true)
	if err != nil {
		return "", "", err
	}
	if len(rel) == 0 {
		return "", "", errEmptyName
	}
	if err := s.createParent(rel); err != nil {
		return "", "", err
	}
	return rel, p, nil
}

// createParent creates the parent directory of the resolved name rel.
func (s *Sandbox) createParent(rel string) error {
	dir := path.Dir(rel)
	if dir == "." {
		return nil
	}
	if err := s.t.CreateDir(filepath.Join(s.root, filepath.FromSlash(dir)), s.cfg.CustomCreateDirMode()); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	return nil
}

// remaining returns the number of bytes that may still be written.
func (s *Sandbox) remaining() int64 {
	if s.cfg.MaxExtractionSize() < 0 {
		return -1
	}
	return max(0, s.cfg.MaxExtractionSize()-s.written)
}

// resolve clamps name into the sandbox and returns the clamped slash separated
// name relative to the root together with the full path on the target.
//
// If an existing component of the path is a symlink, an error is returned. The
// last component is only checked if checkLast is set; operations that replace
// the last component instead of writing through it do not need the check.
func (s *Sandbox) resolve(name string, checkLast bool) (string, string, error) {
	rel := clampPath(name)
	p := filepath.Join(s.root, filepath.FromSlash(rel))

	// the clamped name must be local to the root
	check, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", "", fmt.Errorf("failed to get relative path: %w", err)
	}
	if check != "." && !filepath.IsLocal(check) {
		return "", "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}

	if len(rel) == 0 {
		return rel, p, nil
	}

	// check each existing component for symlinks
	parts := strings.Split(rel, "/")
	n := len(parts)
	if !checkLast {
		n--
	}
	for i := 1; i <= n; i++ {
		checkPath := filepath.Join(s.root, filepath.Join(parts[:i]...))
		fi, err := s.t.Lstat(checkPath)
		if err != nil {
			if isNotExist(err) {
				break
			}
			return "", "", fmt.Errorf("invalid path: %w", err)
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return "", "", fmt.Errorf("%w: symlink in path (%s)", errUnsafePath, strings.Join(parts[:i], "/"))
		}
	}

	return rel, p, nil
}

// clampPath turns name into a clean, slash separated path relative to the
// sandbox root. Empty and "." segments are dropped, ".." removes the previous
// segment and is ignored at the root. Leading slashes are ignored, so absolute
// names are treated as relative to the root.
func clampPath(name string) string {
	segments := strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || (os.PathSeparator == '\\' && r == '\\')
	})

	clamped := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case ".":
			continue
		case "..":
			if len(clamped) > 0 {
				clamped = clamped[:len(clamped)-1]
			}
		default:
			clamped = append(clamped, seg)
		}
	}
	return strings.Join(clamped, "/")
}

// rerootLinkTarget returns the target for a symlink at the clamped name rel,
// so that the link resolves within the sandbox root. Absolute targets are
// relative to the root.
func rerootLinkTarget(rel string, target string) (string, error) {
	dir := path.Dir(rel)

	var resolved string
	if strings.HasPrefix(target, "/") {
		resolved = clampPath(target)
	} else {
		resolved = clampPath(dir + "/" + target)
	}
	if len(resolved) == 0 {
		resolved = "."
	}

	linkTarget, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(resolved))
	if err != nil {
		return "", fmt.Errorf("cannot determine symlink target: %w", err)
	}
	return linkTarget, nil
}
