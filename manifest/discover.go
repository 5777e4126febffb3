package manifest

import (
	"os"
	"path/filepath"

	"github.com/tekton-fabric/core/errs"
)

// Discover walks root (typically $TEKTON_ROOT) looking for component.yaml
// or component.yml files, one per component directory, and loads each one.
// A manifest that fails to load or validate is reported alongside any
// manifests that did load rather than aborting the whole walk, so one
// malformed component doesn't block discovery of the rest.
func Discover(root string) ([]*Manifest, []error) {
	var manifests []*Manifest
	var loadErrs []error

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			loadErrs = append(loadErrs, errs.New(component, "discover", errs.Internal, "walk manifest root").WithCause(err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name != "component.yaml" && name != "component.yml" {
			return nil
		}
		m, err := Load(path)
		if err != nil {
			loadErrs = append(loadErrs, err)
			return nil
		}
		manifests = append(manifests, m)
		return nil
	})

	return manifests, loadErrs
}
