package firewall

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

//go:embed views/403.html
var defaultView string

var bundledTemplate = template.Must(template.New("403").Parse(defaultView))

// viewData is the data handed to denial templates.
type viewData struct {
	Address string
	Query   string
	Pattern string
	Mode    string
}

// RejectWithResponse answers a denied request with 403 Forbidden and the
// rendered denial template, and reports halted=true so the caller stops
// processing the request. Allowed requests are left untouched.
//
// The template is the registry's template path; an empty path selects the
// bundled view and a path that does not exist yields an empty body. Template
// failures never turn a denial into an error. Only decision errors (cache
// backend failures) are returned.
func (fw *Firewall) RejectWithResponse(ctx context.Context, w http.ResponseWriter) (bool, error) {
	halted := false
	_, err := fw.Validate(ctx, func(fw *Firewall, allowed bool, pattern, mode string) *bool {
		if allowed {
			return nil
		}
		halted = true
		fw.respond(w, pattern, mode)
		return nil
	})
	if err != nil {
		return false, err
	}
	return halted, nil
}

// RejectWithError returns *domain.ForbiddenError when the request is denied
// and nil when it is allowed.
func (fw *Firewall) RejectWithError(ctx context.Context) error {
	var forbidden error
	_, err := fw.Validate(ctx, func(fw *Firewall, allowed bool, pattern, mode string) *bool {
		if !allowed {
			forbidden = &domain.ForbiddenError{Address: fw.Address(), Mode: mode, Pattern: pattern}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return forbidden
}

func (fw *Firewall) respond(w http.ResponseWriter, pattern, mode string) {
	body, err := fw.render(pattern, mode)
	if err != nil {
		fw.logger.Warn(map[string]any{"template": fw.Template(), "error": err.Error()}, "firewall_template_failed")
		body = nil
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// render executes the denial template. A configured path that does not exist
// renders nothing.
func (fw *Firewall) render(pattern, mode string) ([]byte, error) {
	tmpl := bundledTemplate
	if path := fw.Template(); path != "" {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if tmpl, err = template.ParseFiles(path); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	data := viewData{Address: fw.reqCtx.Address, Query: fw.reqCtx.Query, Pattern: pattern, Mode: mode}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
