package search

import (
	"testing"

	"imagevault/pkg/domain"
)

func labeled(id int64, label string) domain.Image {
	return domain.Image{ID: id, OwnerID: 1, Label: &label}
}

func ids(images []domain.Image) []int64 {
	out := make([]int64, 0, len(images))
	for _, img := range images {
		out = append(out, img.ID)
	}
	return out
}

func TestByLabelCaseInsensitiveSubstring(t *testing.T) {
	images := []domain.Image{
		labeled(5, "Summer Vacation"),
		{ID: 4, OwnerID: 1},
		labeled(3, "vacation 2019"),
		labeled(2, "cat"),
		labeled(1, "VACA"),
	}
	got := ids(ByLabel(images, "vaca"))
	want := []int64{5, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestByLabelFoldsNonASCII(t *testing.T) {
	images := []domain.Image{
		labeled(2, "Котик на даче"),
		labeled(1, "Straße"),
	}
	if got := ids(ByLabel(images, "КОТИК")); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected cyrillic match, got %v", got)
	}
	if got := ids(ByLabel(images, "STRASSE")); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected folded eszett match, got %v", got)
	}
}

func TestByLabelEmptyQueryMatchesNothing(t *testing.T) {
	images := []domain.Image{labeled(1, "anything")}
	if got := ByLabel(images, ""); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", ids(got))
	}
}

func TestByLabelSkipsEmptyLabels(t *testing.T) {
	images := []domain.Image{labeled(1, ""), {ID: 2}}
	if got := ByLabel(images, "a"); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", ids(got))
	}
}
