package render

import "regexp"

// placeholderPattern matches the boilerplate text scaffold/template sites
// leave behind ("lorem ipsum", "coming soon", "under construction"), used
// as the quality score's non-placeholder signal.
var placeholderPattern = regexp.MustCompile(`(?i)lorem ipsum|coming soon|under construction|this is a placeholder|site is currently unavailable|domain (is )?for sale|default web page|welcome to nginx|apache2 (ubuntu )?default page`)

// qualityScore computes a 0-100 score built from independent signals,
// each contributing its point value only when present.
//
//	phone present        20
//	email present        15
//	address present      15
//	hours present        10
//	word count > 200     15
//	has images           10
//	has forms            10
//	non-placeholder text  5
func qualityScore(p *RenderedPage, nonPlaceholder bool) int {
	score := 0
	if len(p.Phones) > 0 {
		score += 20
	}
	if len(p.Emails) > 0 {
		score += 15
	}
	if p.HasAddress {
		score += 15
	}
	if p.HasHours {
		score += 10
	}
	if p.WordCount > 200 {
		score += 15
	}
	if p.HasImages {
		score += 10
	}
	if p.HasForms {
		score += 10
	}
	if nonPlaceholder {
		score += 5
	}
	return score
}
