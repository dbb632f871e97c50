package render

import (
	"regexp"
	"strings"
)

// RenderedPage is everything the Disposition Engine and LLM Verifier need
// from one rendered page.
type RenderedPage struct {
	FinalURL        string
	Title           string
	MetaDescription string
	Phones          []string
	Emails          []string
	HasAddress      bool
	HasHours        bool
	ContentPreview  string
	WordCount       int
	HasImages       bool
	HasForms        bool
	ScreenshotKey   string // object storage key; empty if no artifact stored
	QualityScore    int
}

var (
	phoneRe = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	metaDescRe = regexp.MustCompile(`(?is)<meta\s+[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`)
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagRe      = regexp.MustCompile(`(?is)<[^>]+>`)
	scriptRe   = regexp.MustCompile(`(?is)<script.*?</script>|<style.*?</style>`)

	addressWordRe = regexp.MustCompile(`(?i)\b(street|st\.|avenue|ave\.|boulevard|blvd|suite|ste\.|road|rd\.|drive|dr\.|[0-9]{5}(-[0-9]{4})?)\b`)
	hoursWordRe   = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon-fri|hours of operation|open\s|closed\s|am\s*[-–]\s*\d|pm\s*[-–]\s*\d)\b`)
	imgTagRe      = regexp.MustCompile(`(?i)<img[\s>]`)
	formTagRe     = regexp.MustCompile(`(?i)<form[\s>]`)
)

const contentPreviewLimit = 2000

// extract runs content-fact extraction over raw HTML, then computes the
// point-based quality score.
func extract(html, finalURL, pageTitle string, screenshot []byte) *RenderedPage {
	title := strings.TrimSpace(pageTitle)
	if title == "" {
		if m := titleRe.FindStringSubmatch(html); len(m) == 2 {
			title = strings.TrimSpace(m[1])
		}
	}

	meta := ""
	if m := metaDescRe.FindStringSubmatch(html); len(m) == 2 {
		meta = strings.TrimSpace(m[1])
	}

	text := stripTags(html)
	words := strings.Fields(text)
	wordCount := len(words)

	preview := text
	if len(preview) > contentPreviewLimit {
		preview = preview[:contentPreviewLimit]
	}

	page := &RenderedPage{
		FinalURL:        finalURL,
		Title:           title,
		MetaDescription: meta,
		Phones:          dedupeStrings(phoneRe.FindAllString(text, -1)),
		Emails:          dedupeStrings(emailRe.FindAllString(text, -1)),
		HasAddress:      addressWordRe.MatchString(text),
		HasHours:        hoursWordRe.MatchString(text),
		ContentPreview:  preview,
		WordCount:       wordCount,
		HasImages:       imgTagRe.MatchString(html),
		HasForms:        formTagRe.MatchString(html),
	}

	page.QualityScore = qualityScore(page, !placeholderPattern.MatchString(text))
	return page
}

func stripTags(html string) string {
	withoutScripts := scriptRe.ReplaceAllString(html, " ")
	withoutTags := tagRe.ReplaceAllString(withoutScripts, " ")
	return strings.Join(strings.Fields(withoutTags), " ")
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// botWallMarkers are the phrases common challenge/interstitial pages use.
var botWallMarkers = []string{
	"checking your browser",
	"enable javascript and cookies",
	"cf-browser-verification",
	"access denied",
	"are you a human",
	"unusual traffic from your computer",
	"captcha",
}

func looksBlockedByBotWall(html string) bool {
	lower := strings.ToLower(html)
	for _, m := range botWallMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
