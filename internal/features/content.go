package features

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"urlguard/internal/urlnorm"
)

// Compiled once; these run against every fetched page.
var (
	reMouseover  = regexp.MustCompile(`onmouseover`)
	reRightClick = regexp.MustCompile(`event\.button\s*==\s*2|contextmenu`)
	rePopup      = regexp.MustCompile(`window\.open`)
)

var errNoDocument = errors.New("page document unavailable")

// htmlFeatures are the features that need a parsed Document.
var htmlFeatures = []Name{
	Favicon, RequestURL, URLOfAnchor, LinksInTags, SFH, SubmittingToEmail,
	OnMouseover, RightClick, PopUpWindow, Iframe,
}

// Document is the parsed page shared by every HTML feature of one request.
// It is never modified after NewDocument returns.
type Document struct {
	doc   *goquery.Document
	lower string
}

// NewDocument parses body once.
func NewDocument(body string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc, lower: strings.ToLower(body)}, nil
}

// AnalyzeContent derives the page features from a single fetch result. page
// may be nil when the fetch failed; fetchErr then explains why.
func AnalyzeContent(u urlnorm.ParsedURL, page *Page, fetchErr error) *Partial {
	p := NewPartial()

	// Case-sensitive: a host typed in another case than its canonical form
	// counts as abnormal.
	p.Set(AbnormalURL, boolToValue(strings.Contains(u.Raw, u.Host)))

	if page == nil {
		reason := fetchErr
		if reason == nil {
			reason = errNoDocument
		}
		p.SetFallback(Redirect, Suspicious, reason)
	} else {
		p.Set(Redirect, bucketRedirects(page.RedirectCount))
	}

	doc, reason := documentFor(page, fetchErr)
	if doc == nil {
		for _, name := range htmlFeatures {
			p.SetFallback(name, Suspicious, reason)
		}
		return p
	}

	host := u.Host
	if v, err := faviconValue(doc, host); err != nil {
		p.SetFallback(Favicon, Suspicious, err)
	} else {
		p.Set(Favicon, v)
	}
	p.Set(RequestURL, requestURLValue(doc, host))
	p.Set(URLOfAnchor, anchorValue(doc, host))
	p.Set(LinksInTags, linksInTagsValue(doc, host))
	p.Set(SFH, sfhValue(doc, host))
	p.Set(SubmittingToEmail, emailValue(doc))
	p.Set(OnMouseover, boolToValue(!reMouseover.MatchString(doc.lower)))
	p.Set(RightClick, boolToValue(!reRightClick.MatchString(doc.lower)))
	p.Set(Iframe, boolToValue(doc.doc.Find("iframe").Length() == 0))
	if rePopup.MatchString(doc.lower) {
		p.Set(PopUpWindow, Suspicious)
	} else {
		p.Set(PopUpWindow, Legitimate)
	}

	return p
}

func documentFor(page *Page, fetchErr error) (*Document, error) {
	if page == nil {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, errNoDocument
	}
	if page.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errNoDocument, page.StatusCode)
	}
	doc, err := NewDocument(page.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNoDocument, err)
	}
	return doc, nil
}

func bucketRedirects(n int) Value {
	switch {
	case n <= 1:
		return Legitimate
	case n <= 3:
		return Suspicious
	default:
		return Phishing
	}
}

func faviconValue(doc *Document, host string) (Value, error) {
	icon := doc.doc.Find("link[rel]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		return strings.Contains(strings.ToLower(rel), "icon")
	}).First()
	if icon.Length() == 0 {
		return Legitimate, nil
	}

	href, _ := icon.Attr("href")
	foreign, err := foreignRef(href, host)
	if err != nil {
		return Suspicious, fmt.Errorf("favicon href %q: %w", href, err)
	}
	return boolToValue(!foreign), nil
}

func requestURLValue(doc *Document, host string) Value {
	total, external := 0, 0
	doc.doc.Find("img, script, link, iframe").Each(func(_ int, s *goquery.Selection) {
		ref := resourceRef(s)
		if ref == "" {
			return
		}
		total++
		if isForeign(ref, host) {
			external++
		}
	})
	if total == 0 {
		return Suspicious
	}
	return bucketRatio(external, total, 22, 61)
}

func anchorValue(doc *Document, host string) Value {
	anchors := doc.doc.Find("a")
	if anchors.Length() == 0 {
		return Phishing
	}
	unsafe := 0
	anchors.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(href, "javascript") || strings.HasPrefix(href, "#") || isForeign(href, host) {
			unsafe++
		}
	})
	return bucketRatio(unsafe, anchors.Length(), 31, 67)
}

func linksInTagsValue(doc *Document, host string) Value {
	total, external := 0, 0
	doc.doc.Find("meta, script, link").Each(func(_ int, s *goquery.Selection) {
		ref := resourceRef(s)
		if ref == "" {
			return
		}
		total++
		if isForeign(ref, host) {
			external++
		}
	})
	if total == 0 {
		return Legitimate
	}
	return bucketRatio(external, total, 17, 81)
}

func sfhValue(doc *Document, host string) Value {
	forms := doc.doc.Find("form")
	if forms.Length() == 0 {
		return Phishing
	}
	result := Legitimate
	forms.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		action = strings.TrimSpace(action)
		if action == "" || strings.Contains(strings.ToLower(action), "about:blank") {
			result = Phishing
			return false
		}
		if isForeign(action, host) {
			result = Suspicious
		}
		return true
	})
	return result
}

func emailValue(doc *Document) Value {
	result := Legitimate
	doc.doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		if strings.Contains(strings.ToLower(action), "mailto:") {
			result = Phishing
			return false
		}
		markup, err := goquery.OuterHtml(s)
		if err == nil && strings.Contains(markup, "mail(") {
			result = Phishing
			return false
		}
		return true
	})
	return result
}

// resourceRef prefers src over href, matching how browsers load the tag.
func resourceRef(s *goquery.Selection) string {
	if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	href, _ := s.Attr("href")
	return strings.TrimSpace(href)
}

func bucketRatio(part, total int, low, high float64) Value {
	pct := float64(part) / float64(total) * 100
	switch {
	case pct < low:
		return Legitimate
	case pct <= high:
		return Suspicious
	default:
		return Phishing
	}
}

// isForeign treats unparseable absolute references as foreign.
func isForeign(ref, host string) bool {
	foreign, err := foreignRef(ref, host)
	return foreign || err != nil
}

// foreignRef reports whether ref is an absolute reference to a site other
// than host. Relative references are never foreign.
func foreignRef(ref, host string) (bool, error) {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "//") {
		return false, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false, err
	}
	return !sameSite(strings.ToLower(u.Hostname()), host), nil
}

// sameSite compares registrable domains so that cdn.example.com belongs to
// www.example.com.
func sameSite(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	ra, errA := publicsuffix.EffectiveTLDPlusOne(a)
	rb, errB := publicsuffix.EffectiveTLDPlusOne(b)
	if errA != nil || errB != nil {
		return false
	}
	return ra == rb
}
