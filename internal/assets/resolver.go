// Package assets locates the page template and stylesheet across the
// directory layouts the service is deployed with.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"resume-pdf/internal/domain"
)

// Logical asset names.
const (
	Template   = "template"
	Stylesheet = "stylesheet"
)

// Resolver searches an ordered list of root directories for each logical
// asset. It holds no cached content: every call reads from disk.
type Resolver struct {
	roots []string
	files map[string]string
}

// NewResolver builds a resolver over roots (searched in order) and the
// relative path of each logical asset.
func NewResolver(roots []string, templatePath, stylesheetPath string) *Resolver {
	return &Resolver{
		roots: append([]string(nil), roots...),
		files: map[string]string{
			Template:   templatePath,
			Stylesheet: stylesheetPath,
		},
	}
}

// Candidates returns the paths tried for name, in search order.
func (r *Resolver) Candidates(name string) []string {
	rel, ok := r.files[name]
	if !ok {
		return nil
	}
	if filepath.IsAbs(rel) {
		return []string{rel}
	}
	out := make([]string, 0, len(r.roots))
	for _, root := range r.roots {
		out = append(out, filepath.Join(root, rel))
	}
	return out
}

// Resolve returns the content and location of the first existing candidate
// for name.
func (r *Resolver) Resolve(name string) (content, path string, err error) {
	candidates := r.Candidates(name)
	for _, p := range candidates {
		info, statErr := os.Stat(p)
		if statErr != nil {
			if errors.Is(statErr, fs.ErrNotExist) {
				continue
			}
			return "", p, fmt.Errorf("stat %s asset %s: %w", name, p, statErr)
		}
		if info.IsDir() {
			continue
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return "", p, fmt.Errorf("read %s asset %s: %w", name, p, readErr)
		}
		if len(data) == 0 {
			return "", p, &domain.AssetEmptyError{Asset: name, Path: p}
		}
		return string(data), p, nil
	}
	return "", "", &domain.AssetNotFoundError{Asset: name, Tried: candidates}
}

// Load resolves the template and the stylesheet concurrently.
func (r *Resolver) Load(ctx context.Context) (domain.ResolvedAssets, error) {
	var out domain.ResolvedAssets
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Template, out.TemplatePath, err = r.Resolve(Template)
		return err
	})
	g.Go(func() error {
		var err error
		out.Stylesheet, out.StylesheetPath, err = r.Resolve(Stylesheet)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ResolvedAssets{}, err
	}
	return out, nil
}
