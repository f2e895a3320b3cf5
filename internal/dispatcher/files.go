package dispatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// documentsPlaceholder is the prefix fleet file commands use to address the
// local document area.
const documentsPlaceholder = "%DOCUMENTS%/"

// DocumentArea is the app-local directory the file commands deploy into and
// remove from.
type DocumentArea struct {
	root string
}

func NewDocumentArea(root string) *DocumentArea {
	return &DocumentArea{root: root}
}

// Resolve translates a fleet path into a local path under the document root.
// It rejects paths escaping the root.
func (d *DocumentArea) Resolve(path string) (string, error) {
	name := strings.TrimPrefix(path, documentsPlaceholder)
	name = filepath.Clean(name)

	if name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("path %q escapes the document area", path)
	}

	return filepath.Join(d.root, name), nil
}

func (d *DocumentArea) Remove(path string) error {
	local, err := d.Resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(local); err != nil {
		return fmt.Errorf("cannot remove %q '%w'", local, err)
	}

	return nil
}

func (d *DocumentArea) Store(path string, data []byte) error {
	local, err := d.Resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("cannot create directory for %q '%w'", local, err)
	}

	if err := os.WriteFile(local, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %q '%w'", local, err)
	}

	return nil
}
