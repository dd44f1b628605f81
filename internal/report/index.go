package report

import (
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const indexTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <style>
    body { font-family: system-ui, sans-serif; margin: 0; background: #f6f7f9; color: #111; }
    header { background: #fff; border-bottom: 1px solid #e6e8ec; padding: 18px 22px; }
    header h1 { font-size: 18px; margin: 0; }
    main { padding: 22px; max-width: 1080px; margin: 0 auto; }
    .meta { color: #555; font-size: 13px; margin: 0 0 14px 0; }
    .card { background: #fff; border: 1px solid #e6e8ec; border-radius: 10px; padding: 14px 16px; }
    ul { list-style: none; padding: 0; margin: 0; }
    li { display: flex; justify-content: space-between; padding: 10px 0; border-bottom: 1px solid #f0f1f4; }
    li:last-child { border-bottom: 0; }
    a { text-decoration: none; color: #0b57d0; }
    .date { color: #666; font-size: 12px; }
  </style>
</head>
<body>
  <header><h1>{{.Title}}</h1></header>
  <main>
    <p class="meta">Generated: {{.GeneratedAt}}</p>
    <div class="card">
      <ul>
        {{range .Files}}<li><a href="{{.Name}}">{{.Name}}</a><span class="date">{{.Date}}</span></li>
        {{else}}<li><span>No reports yet.</span></li>{{end}}
      </ul>
    </div>
  </main>
</body>
</html>
`

var dateInName = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

type indexFile struct {
	Name string
	Date string
}

// WriteIndex regenerates dir/index.html listing the PDF reports, newest
// first. The date is taken from the filename when present, falling back
// to the file's mtime.
func WriteIndex(dir, title string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "list output dir")
	}
	var files []indexFile
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		date := ""
		if m := dateInName.FindAllString(e.Name(), -1); len(m) > 0 {
			date = m[len(m)-1]
		} else if info, err := e.Info(); err == nil {
			date = info.ModTime().UTC().Format("2006-01-02")
		}
		files = append(files, indexFile{Name: e.Name(), Date: date})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Date != files[j].Date {
			return files[i].Date > files[j].Date
		}
		return files[i].Name > files[j].Name
	})

	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(dir, "index.html"))
	if err != nil {
		return errors.Wrap(err, "create index.html")
	}
	defer out.Close()
	return tmpl.Execute(out, map[string]any{
		"Title":       title,
		"GeneratedAt": time.Now().UTC().Format("2006-01-02 15:04 UTC"),
		"Files":       files,
	})
}
