// Package search filters archived images by their labels.
package search

import (
	"strings"

	"golang.org/x/text/cases"

	"imagevault/pkg/domain"
)

// ByLabel returns the images whose label contains query, compared under
// Unicode case folding. Input order is preserved and unnamed images never
// match. An empty query matches nothing; callers reject it before calling.
func ByLabel(images []domain.Image, query string) []domain.Image {
	res := make([]domain.Image, 0)
	if query == "" {
		return res
	}
	folder := cases.Fold()
	needle := folder.String(query)
	for _, img := range images {
		if !img.HasLabel() {
			continue
		}
		if strings.Contains(folder.String(img.LabelOrEmpty()), needle) {
			res = append(res, img)
		}
	}
	return res
}
