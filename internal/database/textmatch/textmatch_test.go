package textmatch

import (
	"reflect"
	"testing"

	"github.com/platewise/platewise-api/internal/database/models"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Joe's Pizza & Pasta, NYC a pizza")
	want := []string{"joe", "pizza", "pasta", "nyc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestScoreWeightsNameAboveDescription(t *testing.T) {
	byName := &models.Restaurant{Name: "Ramen House"}
	byDesc := &models.Restaurant{Name: "Kitchen", Description: "serves ramen"}
	tokens := Tokenize("ramen")

	if Score(byName, tokens) <= Score(byDesc, tokens) {
		t.Errorf("expected name match (%v) to outrank description match (%v)", Score(byName, tokens), Score(byDesc, tokens))
	}
}

func TestScoreNoMatch(t *testing.T) {
	r := &models.Restaurant{Name: "Taqueria", Categories: []string{"Mexican"}}
	if s := Score(r, Tokenize("sushi")); s != 0 {
		t.Errorf("expected 0, got %v", s)
	}
}

func TestScoreCoversMappedFields(t *testing.T) {
	r := &models.Restaurant{
		Name:          "X",
		SocialHandles: []string{"@bestbagels"},
		Address:       models.Address{City: "Brooklyn"},
	}
	if Score(r, Tokenize("bestbagels")) == 0 {
		t.Error("expected social handle to be searchable")
	}
	if Score(r, Tokenize("brooklyn")) == 0 {
		t.Error("expected city to be searchable")
	}
}
