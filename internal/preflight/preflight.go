// Package preflight inspects the survey page before a browser is started.
//
// It resolves the page argument into a URL the browser can open and, for
// local files, parses the static markup to report which of the hooks the
// check relies on are present. Elements created by script at runtime are
// invisible here, so a missing hook is a warning and never an error.
package preflight

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/mobilecheck/internal/config"
)

var (
	// ErrPageNotFound is returned when a local page file does not exist.
	ErrPageNotFound = errors.New("page file not found")
	// ErrUnsupportedSelector marks selectors too complex for static matching.
	ErrUnsupportedSelector = errors.New("unsupported selector")
)

// Target is a resolved page.
type Target struct {
	// URL is what the browser navigates to.
	URL string
	// Path is the local file backing URL, empty for remote pages.
	Path string
}

// Remote reports whether the page is served over the network.
func (t Target) Remote() bool {
	return t.Path == ""
}

// Resolve turns a page argument (relative or absolute path, ~ path, file://
// URL or http(s) URL) into a Target. Local files must exist.
func Resolve(page string) (Target, error) {
	page = strings.TrimSpace(page)
	lower := strings.ToLower(page)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if _, err := url.Parse(page); err != nil {
			return Target{}, fmt.Errorf("invalid page URL %q: %w", page, err)
		}
		return Target{URL: page}, nil
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(page)
		if err != nil {
			return Target{}, fmt.Errorf("invalid page URL %q: %w", page, err)
		}
		page = filepath.FromSlash(u.Path)
	}

	expanded, err := homedir.Expand(page)
	if err != nil {
		return Target{}, fmt.Errorf("failed to expand page path: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return Target{}, fmt.Errorf("failed to resolve page path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Target{}, fmt.Errorf("%w: %s", ErrPageNotFound, abs)
		}
		return Target{}, fmt.Errorf("failed to stat page: %w", err)
	}
	if info.IsDir() {
		return Target{}, fmt.Errorf("%w: %s is a directory", ErrPageNotFound, abs)
	}
	return Target{URL: fileURL(abs), Path: abs}, nil
}

func fileURL(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths.
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// Hook is one element the check depends on.
type Hook struct {
	Name     string `json:"name" yaml:"name"`
	Selector string `json:"selector" yaml:"selector"`
	// Matches is the number of elements in the static markup. -1 when the
	// selector could not be evaluated statically.
	Matches int `json:"matches" yaml:"matches"`
}

// Result lists the hooks found in a page file.
type Result struct {
	Path  string `json:"path" yaml:"path"`
	Hooks []Hook `json:"hooks" yaml:"hooks"`
}

// Warnings describes every hook missing from the static markup.
func (r *Result) Warnings() []string {
	var out []string
	for _, h := range r.Hooks {
		switch {
		case h.Matches == 0:
			out = append(out, fmt.Sprintf("%s (%s) not found in static markup of %s", h.Name, h.Selector, filepath.Base(r.Path)))
		case h.Matches < 0:
			out = append(out, fmt.Sprintf("%s (%s) cannot be checked statically", h.Name, h.Selector))
		}
	}
	return out
}

// Hooks returns the hooks named by sel, in check order.
func Hooks(sel config.SelectorConfig) []Hook {
	return []Hook{
		{Name: "questions container", Selector: "#" + sel.ContainerID},
		{Name: "answer input", Selector: sel.Input},
		{Name: "question slides", Selector: sel.Slides},
		{Name: "next button", Selector: sel.Next},
	}
}

// Inspect parses the page file at path and counts every hook.
func Inspect(path string, sel config.SelectorConfig) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPageNotFound, path)
		}
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	res := &Result{Path: path, Hooks: Hooks(sel)}
	for i := range res.Hooks {
		res.Hooks[i].Matches = -1
		expr, err := toXPath(res.Hooks[i].Selector)
		if err != nil {
			continue
		}
		nodes, err := htmlquery.QueryAll(doc, expr)
		if err != nil {
			continue
		}
		res.Hooks[i].Matches = len(nodes)
	}
	return res, nil
}

// toXPath translates a compound selector of an optional tag plus any number
// of #id and .class parts into XPath. Combinators, attribute selectors and
// pseudo classes are not supported.
func toXPath(selector string) (string, error) {
	sel := strings.TrimSpace(selector)
	if sel == "" || strings.ContainsAny(sel, " \t>+~[]():*,'\"\\") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSelector, selector)
	}

	tag, rest := "*", sel
	if i := strings.IndexAny(sel, ".#"); i < 0 {
		tag, rest = sel, ""
	} else if i > 0 {
		tag, rest = sel[:i], sel[i:]
	}

	var b strings.Builder
	b.WriteString("//" + strings.ToLower(tag))
	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		name := rest
		if j := strings.IndexAny(rest, ".#"); j >= 0 {
			name, rest = rest[:j], rest[j:]
		} else {
			rest = ""
		}
		if name == "" {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedSelector, selector)
		}
		if kind == '#' {
			fmt.Fprintf(&b, "[@id='%s']", name)
		} else {
			fmt.Fprintf(&b, "[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]", name)
		}
	}
	return b.String(), nil
}
