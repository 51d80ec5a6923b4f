package resolver

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

// parseMeta extracts Open Graph, Twitter Card and fallback <title>/<meta name> values.
// Scanning stops at <body>; entities are decoded by the tokenizer.
func parseMeta(r io.Reader, page *url.URL) models.Metadata {
	var (
		props    = make(map[string]string)
		tags     []string
		docTitle string
		inTitle  bool
	)

	z := html.NewTokenizer(r)
scan:
	for {
		switch z.Next() {
		case html.ErrorToken:
			break scan
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Body:
				break scan
			case atom.Title:
				inTitle = docTitle == ""
			case atom.Meta:
				key, content := metaPair(tok)
				if key == "" || content == "" {
					continue
				}
				switch key {
				case "article:tag", "og:article:tag":
					tags = append(tags, content)
				default:
					if _, seen := props[key]; !seen {
						props[key] = content
					}
				}
			}
		case html.TextToken:
			if inTitle {
				docTitle = strings.TrimSpace(string(z.Text()))
				inTitle = false
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "title" {
				inTitle = false
			}
		}
	}

	meta := models.Metadata{
		Title:       first(props["og:title"], props["twitter:title"], docTitle),
		Description: first(props["og:description"], props["twitter:description"], props["description"]),
		Image:       first(props["og:image"], props["og:image:secure_url"], props["og:image:url"], props["twitter:image"], props["twitter:image:src"]),
	}
	meta.Image = resolveImage(meta.Image, page)

	if kw := props["keywords"]; kw != "" {
		for _, k := range strings.Split(kw, ",") {
			tags = append(tags, k)
		}
	}
	meta.Tags = cleanTags(tags)
	return meta
}

// metaPair returns the lower-cased property/name key and the content of a <meta> tag
func metaPair(tok html.Token) (string, string) {
	var key, content string
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name", "itemprop":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	return key, content
}

// resolveImage makes image absolute against the page URL and drops anything that is not http(s)
func resolveImage(image string, page *url.URL) string {
	image = strings.TrimSpace(image)
	if image == "" {
		return ""
	}
	ref, err := url.Parse(image)
	if err != nil {
		return ""
	}
	if page != nil && !ref.IsAbs() {
		ref = page.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func cleanTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
