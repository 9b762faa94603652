package templates

import "html/template"

// ParseTemplates parses the named HTML templates from the embedded
// filesystem with the helper funcs the pages rely on.
func ParseTemplates(files ...string) (*template.Template, error) {
	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"subtract": func(a, b int) int {
			return a - b
		},
		// deref unwraps the nullable model fields for display.
		"deref": func(v interface{}) interface{} {
			switch p := v.(type) {
			case *uint:
				if p == nil {
					return uint(0)
				}
				return *p
			case *float64:
				if p == nil {
					return 0.0
				}
				return *p
			default:
				return v
			}
		},
	}

	return template.New("").Funcs(funcMap).ParseFS(FS, files...)
}
