package preview

import (
	"bytes"
	"fmt"
	"html/template"
)

// DefaultSiteName is appended to every preview title.
const DefaultSiteName = "معرض السماح للمفروشات"

const (
	descriptionLimit = 160
	socialLimit      = 200
	imageWidth       = 1200
	imageHeight      = 630
)

// Document holds the values rendered into a preview page.
type Document struct {
	Title       string
	Description string
	SiteName    string
	PageURL     string
	ImageURL    string
}

type documentView struct {
	Document
	MetaDescription   string
	SocialDescription string
	ImageWidth        int
	ImageHeight       int
}

var documentTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
<meta charset="UTF-8">
<title>{{.Title}} | {{.SiteName}}</title>
<meta name="description" content="{{.MetaDescription}}">
<meta property="og:type" content="product">
<meta property="og:url" content="{{.PageURL}}">
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.SocialDescription}}">
{{- if .ImageURL}}
<meta property="og:image" content="{{.ImageURL}}">
<meta property="og:image:width" content="{{.ImageWidth}}">
<meta property="og:image:height" content="{{.ImageHeight}}">
{{- end}}
<meta property="og:site_name" content="{{.SiteName}}">
<meta property="og:locale" content="ar_AR">
<meta name="twitter:card" content="summary_large_image">
<meta name="twitter:title" content="{{.Title}}">
<meta name="twitter:description" content="{{.SocialDescription}}">
{{- if .ImageURL}}
<meta name="twitter:image" content="{{.ImageURL}}">
{{- end}}
<meta http-equiv="refresh" content="0;url={{.PageURL}}">
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Description}}</p>
{{- if .ImageURL}}
<img src="{{.ImageURL}}" alt="{{.Title}}">
{{- end}}
<script>window.location.href = {{.PageURL}};</script>
</body>
</html>
`))

// Render produces the preview page for doc. The output depends only on doc.
func Render(doc Document) ([]byte, error) {
	if doc.SiteName == "" {
		doc.SiteName = DefaultSiteName
	}
	view := documentView{
		Document:          doc,
		MetaDescription:   truncate(doc.Description, descriptionLimit),
		SocialDescription: truncate(doc.Description, socialLimit),
		ImageWidth:        imageWidth,
		ImageHeight:       imageHeight,
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render preview document: %w", err)
	}
	return buf.Bytes(), nil
}

// truncate keeps the first limit code points of s.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
