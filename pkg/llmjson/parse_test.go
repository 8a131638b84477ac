package llmjson_test

import (
	"errors"
	"testing"

	"PaperTriage/pkg/llmjson"
)

type axes struct {
	Novelty int `json:"novelty"`
	Fit     int `json:"fit"`
}

func TestParse(t *testing.T) {
	t.Run("direct JSON", func(t *testing.T) {
		got, err := llmjson.Parse[axes](` {"novelty":4,"fit":2} `)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got.Novelty != 4 || got.Fit != 2 {
			t.Errorf("Parse = %+v, want {Novelty:4 Fit:2}", got)
		}
	})

	t.Run("markdown fenced JSON", func(t *testing.T) {
		got, err := llmjson.Parse[axes]("Sure:\n```json\n{\"novelty\":5,\"fit\":1}\n```\nThanks.")
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got.Novelty != 5 || got.Fit != 1 {
			t.Errorf("Parse = %+v, want {Novelty:5 Fit:1}", got)
		}
	})

	t.Run("embedded object", func(t *testing.T) {
		got, err := llmjson.Parse[axes](`The rubric is {"novelty":3,"fit":3} as requested.`)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got.Novelty != 3 {
			t.Errorf("Novelty = %d, want 3", got.Novelty)
		}
	})

	t.Run("embedded array", func(t *testing.T) {
		got, err := llmjson.Parse[[]string](`Tags: ["vision", "diffusion"]`)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if len(got) != 2 || got[1] != "diffusion" {
			t.Errorf("Parse = %v, want [vision diffusion]", got)
		}
	})

	t.Run("no JSON", func(t *testing.T) {
		_, err := llmjson.Parse[axes]("I cannot score this paper.")
		if !errors.Is(err, llmjson.ErrParseFailed) {
			t.Fatalf("expected ErrParseFailed, got %v", err)
		}
	})
}
