// Package templates renders notification emails from a YAML catalog.
//
// Each catalog entry has a subject, a plain-text body and an HTML fragment.
// Subject and text use text/template, the fragment uses html/template, and
// the fragment is wrapped in a shared templ layout:
//
//	welcome:
//	  subject: "Welcome to {{.workspace}}"
//	  text: "Hi {{.name}}, your workspace is ready."
//	  html: "<p>Hi {{.name}}, your workspace is ready.</p>"
package templates
