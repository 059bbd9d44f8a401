package webhook

import "strings"

// The paired-URL convention follows the path shape used by n8n-style workflow
// tools: ".../webhook-test/<id>" while editing, ".../webhook/<id>" in production.
const (
	testSegment       = "webhook-test"
	productionSegment = "webhook"
)

func IsTestVariant(url string) bool {
	return strings.Contains(url, testSegment)
}

// ToProductionVariant rewrites the first "webhook-test" to "webhook".
func ToProductionVariant(url string) (string, bool) {
	if !IsTestVariant(url) {
		return "", false
	}
	return strings.Replace(url, testSegment, productionSegment, 1), true
}

// ToTestVariant rewrites the first "webhook" to "webhook-test" when url is not already a test variant.
func ToTestVariant(url string) (string, bool) {
	if IsTestVariant(url) || !strings.Contains(url, productionSegment) {
		return "", false
	}
	return strings.Replace(url, productionSegment, testSegment, 1), true
}

// Counterpart maps a test URL to its production twin and vice versa.
func Counterpart(url string) (string, bool) {
	if IsTestVariant(url) {
		return ToProductionVariant(url)
	}
	return ToTestVariant(url)
}

// Mirror gates the naming convention behind a switch. The zero value mirrors nothing.
type Mirror struct {
	Enabled bool
}

// Production is used by subscribe, which only mirrors test → production.
func (m Mirror) Production(url string) (string, bool) {
	if !m.Enabled {
		return "", false
	}
	return ToProductionVariant(url)
}

// Counterpart is used by unsubscribe, status and forwarding, which mirror both ways.
func (m Mirror) Counterpart(url string) (string, bool) {
	if !m.Enabled {
		return "", false
	}
	return Counterpart(url)
}
