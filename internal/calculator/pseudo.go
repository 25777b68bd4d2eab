package calculator

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// PseudoExtensions lists the pseudopotential formats in lookup order.
var PseudoExtensions = []string{".psf", ".psml"}

// FindPseudopotential returns the file for symbol under pseudoPath.
func FindPseudopotential(pseudoPath, symbol string) (string, error) {
	for _, ext := range PseudoExtensions {
		candidate := filepath.Join(pseudoPath, symbol+ext)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no pseudopotential for %s in %s (tried %v)", symbol, pseudoPath, PseudoExtensions)
}

// LinkPseudopotentials makes the pseudopotential of every symbol available
// in dir, as a symlink when possible and a copy otherwise. It returns the
// staged file names relative to dir, in the order of symbols.
func LinkPseudopotentials(dir, pseudoPath string, symbols []string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(pseudoPath) {
		pseudoPath = filepath.Join(absDir, pseudoPath)
	}

	var (
		staged []string
		errs   []error
	)
	for _, sym := range symbols {
		src, err := FindPseudopotential(pseudoPath, sym)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := filepath.Base(src)
		dst := filepath.Join(absDir, name)
		if err := stageFile(src, dst); err != nil {
			errs = append(errs, fmt.Errorf("stage %s: %w", name, err))
			continue
		}
		staged = append(staged, name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return staged, nil
}

func stageFile(src, dst string) error {
	if same, err := sameFile(src, dst); err != nil {
		return err
	} else if same {
		return nil
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Symlink(src, dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

func sameFile(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		// Missing or dangling destination.
		return false, nil
	}
	return os.SameFile(ia, ib), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
