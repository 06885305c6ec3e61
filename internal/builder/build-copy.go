package builder

import (
	"io/fs"
	"path/filepath"
)

// isAsset reports whether path is a plain file mirrored verbatim: not a source,
// not a module, not a special file, not hidden by a rule.
func (e *Engine) isAsset(path string) bool {
	if !e.copiesAssets() {
		return false
	}
	if e.rule.Watches(filepath.Ext(path)) || e.isSpecial(path) {
		return false
	}
	if e.rule.IsExcludedFile(filepath.Base(path)) || e.rule.IsUnderExcludedDir(path) {
		return false
	}
	_, rel, ok := e.rule.RootOf(path)
	return ok && !e.rule.IsIgnored(rel)
}

// assetOutput keeps the asset name unchanged.
func (e *Engine) assetOutput(path string) string {
	return e.mapper.ToOutputPath(path, true)
}

func (e *Engine) copyAsset(path string) error {
	dst := e.assetOutput(path)
	e.log.Debug("msg", "copying asset", "file", path, "output", dst)
	if err := e.writer.Copy(path, dst); err != nil {
		e.log.Error("msg", "Failed to copy asset", "file", path, "err", err)
		return err
	}
	return nil
}

func (e *Engine) copyAllAssets() error {
	if !e.copiesAssets() {
		return nil
	}

	for _, root := range e.rule.SourceRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if isNotExist(err) && path == root {
					return fs.SkipDir
				}
				return err
			}

			rel, err := filepath.Rel(root, path)
			if err != nil || rel == "." {
				return err
			}

			if d.IsDir() {
				if e.rule.IsExcludedDir(d.Name()) || e.rule.IsIgnored(rel) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !e.isAsset(path) {
				return nil
			}
			return e.copyAsset(path)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
