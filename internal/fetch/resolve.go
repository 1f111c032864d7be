package fetch

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Filename detection probes the remote end before the download starts.
// Every step is best-effort: a network or parse failure falls through to
// the next step, never aborts the resolution.

const (
	probeRange   = "bytes=0-2048"
	probeBodyMax = 64 * 1024
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	dispositionExtRE    = regexp.MustCompile(`filename\*=UTF-8''([^;]+)`)
	dispositionSimpleRE = regexp.MustCompile(`filename="?([^";]+)"?`)
	ogTitleRE           = regexp.MustCompile(`property="og:title" content="([^"]+)"`)
	htmlTitleRE         = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
)

// ResolveFilename runs the fallback chain and returns the first name that
// sticks, or the fallback when every step comes up empty.
func ResolveFilename(ctx context.Context, client *http.Client, rawURL, fallback string) string {
	if name, ok := fromHead(ctx, client, rawURL); ok {
		return name
	}

	if name, ok := fromURLPath(rawURL); ok {
		return name
	}

	if name, ok := fromProbe(ctx, client, rawURL); ok {
		return name
	}

	return fallback
}

// fromHead issues a HEAD request and inspects Content-Disposition first,
// then the final post-redirect URL path.
func fromHead(ctx context.Context, client *http.Client, rawURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", false
	}

	if name, ok := fromContentDisposition(resp.Header); ok {
		return name, true
	}

	return fromURLPath(resp.Request.URL.String())
}

// fromContentDisposition handles both the RFC 5987 extended form and the
// quoted-simple form.
func fromContentDisposition(h http.Header) (string, bool) {
	cd := h.Get("Content-Disposition")
	if cd == "" {
		return "", false
	}

	if m := dispositionExtRE.FindStringSubmatch(cd); m != nil {
		if name, err := url.QueryUnescape(m[1]); err == nil && name != "" {
			return name, true
		}
	}

	if m := dispositionSimpleRE.FindStringSubmatch(cd); m != nil && m[1] != "" {
		return m[1], true
	}

	return "", false
}

// fromURLPath accepts the last path segment only when it looks like a real
// filename, i.e. contains a literal dot.
func fromURLPath(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	if name == "." || name == "/" || !strings.Contains(name, ".") {
		return "", false
	}

	return name, true
}

// fromProbe does a short partial-range GET and tries, in order: the
// response's Content-Disposition, a JSON body filename key, an HTML title,
// and a MIME-type extension guess.
func fromProbe(ctx context.Context, client *http.Client, rawURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", probeRange)

	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", false
	}

	if name, ok := fromContentDisposition(resp.Header); ok {
		return name, true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, probeBodyMax))
	if err != nil {
		body = nil
	}

	if name, ok := fromJSONBody(body); ok {
		return name, true
	}

	if name, ok := fromHTMLBody(body); ok {
		return name, true
	}

	return fromContentType(resp.Header)
}

func fromJSONBody(body []byte) (string, bool) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", false
	}

	for _, key := range []string{"filename", "file_name", "name", "title"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v, true
		}
	}

	return "", false
}

func fromHTMLBody(body []byte) (string, bool) {
	text := string(body)

	if m := ogTitleRE.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	if m := htmlTitleRE.FindStringSubmatch(text); m != nil {
		if title := strings.TrimSpace(m[1]); title != "" {
			return title, true
		}
	}

	return "", false
}

func fromContentType(h http.Header) (string, bool) {
	ct := h.Get("Content-Type")
	if ct == "" {
		return "", false
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", false
	}

	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return "", false
	}

	return "file" + exts[0], true
}
