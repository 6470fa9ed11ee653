package httpserver

import (
	"encoding/json"
	"testing"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

func TestToMovieResponse_NilGenres(t *testing.T) {
	resp := toMovieResponse(domain.Movie{ID: "1", Title: "Heat (1995)"})
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"1","title":"Heat (1995)","genres":[],"avg_rating":0,"rating_count":0}`
	if string(payload) != want {
		t.Fatalf("payload = %s, want %s", payload, want)
	}
}

func TestToRatingStatsResponse_Empty(t *testing.T) {
	payload, err := json.Marshal(toRatingStatsResponse(domain.RatingStats{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"avg_rating":0,"total_count":0,"rating_distribution":{}}`
	if string(payload) != want {
		t.Fatalf("payload = %s, want %s", payload, want)
	}
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"missing", "", 7, false},
		{"value", "limit=25", 25, false},
		{"negative passes through", "limit=-1", -1, false},
		{"not a number", "limit=x", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := parseQuery(t, tt.raw)
			got, err := intParam(values, "limit", 7)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("intParam = %d, want %d", got, tt.want)
			}
		})
	}
}
