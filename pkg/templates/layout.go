package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const layoutStyle = `body{margin:0;padding:0;background:#f4f5f7;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;color:#1f2933}` +
	`.wrap{max-width:600px;margin:0 auto;padding:32px 24px}` +
	`.card{background:#fff;border-radius:8px;padding:32px;line-height:1.5}` +
	`h1{font-size:20px;margin:0 0 16px}` +
	`.footer{color:#7b8794;font-size:12px;text-align:center;margin-top:24px}`

// Layout wraps an already escaped HTML body in the shared email shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>`+templ.EscapeString(title)+`</title><style>`+layoutStyle+`</style></head>`+
			`<body><div class="wrap"><div class="card"><h1>`+templ.EscapeString(title)+`</h1>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div><div class="footer">You are receiving this because of your notification settings.</div></div></body></html>`)
		return err
	})
}

// Paragraphs renders plain text as escaped paragraphs, one per blank-line
// separated block.
func Paragraphs(text string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, p := range splitParagraphs(text) {
			if _, err := io.WriteString(w, "<p>"+templ.EscapeString(p)+"</p>"); err != nil {
				return err
			}
		}
		return nil
	})
}
