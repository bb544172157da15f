package command

import (
	"regexp"
	"strings"

	"github.com/aretw0/wren/pkg/domain"
)

// Labeled values run up to the next comma, semicolon, period or newline.
var sceneFieldPatterns = []struct {
	field domain.SceneField
	re    *regexp.Regexp
}{
	{domain.FieldLocation, regexp.MustCompile(`(?i)location:([^\n,;.]+)`)},
	{domain.FieldGoal, regexp.MustCompile(`(?i)goal:([^\n,;.]+)`)},
	{domain.FieldOpposition, regexp.MustCompile(`(?i)opposition:([^\n,;.]+)`)},
	{domain.FieldMagicalConditions, regexp.MustCompile(`(?i)magical[^:]*:([^\n,;.]+)`)},
}

// ExtractSceneFields pulls labeled scene fields out of free narrative text.
// It is best effort: unlabeled text yields an empty map.
func ExtractSceneFields(text string) map[domain.SceneField]string {
	out := make(map[domain.SceneField]string)
	for _, p := range sceneFieldPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			out[p.field] = v
		}
	}
	return out
}
