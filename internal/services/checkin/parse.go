package checkin

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/fnsign/internal/models"
	"golang.org/x/net/html"
)

const (
	signButtonSelector = ".signbtn .btna"
	summaryHeader      = "我的打卡动态"
)

var signTokenPattern = regexp.MustCompile(`sign=([^&]+)`)

// stateMatcher maps label markers to a state; matchers are tried in order.
// markers match as substrings, phrases match whole words and not after a negation.
type stateMatcher struct {
	state   models.SignState
	markers []string
	phrases [][]string
}

var stateMatchers = []stateMatcher{
	{state: models.SignStateCompleted, markers: []string{"已打卡"}, phrases: [][]string{{"completed"}}},
	{state: models.SignStatePending, markers: []string{"点击打卡"}, phrases: [][]string{{"click", "to", "check", "in"}}},
}

var negations = map[string]bool{"not": true, "no": true, "never": true}

// ClassifyLabel derives the check-in state from the button label
func ClassifyLabel(label string) models.SignState {
	normalized := strings.ToLower(strings.TrimSpace(label))
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, matcher := range stateMatchers {
		for _, marker := range matcher.markers {
			if strings.Contains(normalized, marker) {
				return matcher.state
			}
		}
		for _, phrase := range matcher.phrases {
			if containsPhrase(words, phrase) {
				return matcher.state
			}
		}
	}
	return models.SignStateUnknown
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		if i > 0 && negations[words[i-1]] {
			continue
		}
		if slices.Equal(words[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

// parseStatus reads the check-in button. ok is false when the page has no button.
func parseStatus(doc *goquery.Document) (*models.SignStatus, bool) {
	button := doc.Find(signButtonSelector).First()
	if button.Length() == 0 {
		return nil, false
	}

	label := strings.TrimSpace(button.Text())
	status := &models.SignStatus{
		State: ClassifyLabel(label),
		Label: label,
	}
	if match := signTokenPattern.FindStringSubmatch(button.AttrOr("href", "")); match != nil {
		status.Token = match[1]
	}
	return status, true
}

// parseSummary reads the statistics panel. ok is false when the panel is missing.
func parseSummary(doc *goquery.Document) (models.SignSummary, bool) {
	panel := doc.Find("div.bm").FilterFunction(func(_ int, div *goquery.Selection) bool {
		return strings.Contains(div.Find("div.bm_h").First().Text(), summaryHeader)
	}).First()
	if panel.Length() == 0 {
		return nil, false
	}

	summary := models.SignSummary{}
	panel.Find("div.bm_c").First().Find("li").Each(func(_ int, item *goquery.Selection) {
		label, value, ok := splitEntry(strippedText(item))
		if !ok {
			return
		}
		for i := range summary {
			if summary[i].Label == label {
				summary[i].Value = value
				return
			}
		}
		summary = append(summary, models.SummaryEntry{Label: label, Value: value})
	})
	return summary, true
}

// splitEntry splits "label：value" on the first full-width colon, or the first ASCII colon when there is none
func splitEntry(text string) (string, string, bool) {
	if label, value, ok := strings.Cut(text, "："); ok {
		return label, value, true
	}
	if label, value, ok := strings.Cut(text, ":"); ok {
		return label, value, true
	}
	return "", "", false
}

// strippedText concatenates the trimmed text nodes under sel, so
// "<span>连续打卡</span>： <b>5</b> 天" reads "连续打卡：5天"
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
