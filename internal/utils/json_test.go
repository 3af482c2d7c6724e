package utils

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain object",
			content: `{"a":1}`,
			want:    `{"a":1}`,
		},
		{
			name:    "surrounding prose",
			content: "Sure, here it is: {\"a\":{\"b\":2}} hope that helps",
			want:    `{"a":{"b":2}}`,
		},
		{
			name:    "braces inside strings",
			content: `note {"text":"use } carefully","n":1} trailing`,
			want:    `{"text":"use } carefully","n":1}`,
		},
		{
			name:    "escaped quote inside string",
			content: `{"text":"say \"}\" now"}`,
			want:    `{"text":"say \"}\" now"}`,
		},
		{
			name:    "unclosed object",
			content: `{"a":1`,
			want:    `{"a":1`,
		},
		{
			name:    "no object",
			content: "nothing here",
			want:    "nothing here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.content); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "json fence",
			content: "```json\n{\"a\":1}\n```",
			want:    `{"a":1}`,
		},
		{
			name:    "bare fence with prose",
			content: "Result:\n```\n{\"a\":1}\n```\nDone.",
			want:    `{"a":1}`,
		},
		{
			name:    "inline fence",
			content: "```{\"a\":1}```",
			want:    `{"a":1}`,
		},
		{
			name:    "unclosed fence",
			content: "```json\n{\"a\":1}",
			want:    `{"a":1}`,
		},
		{
			name:    "no fence",
			content: `{"a":1}`,
			want:    `{"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.content); got != tt.want {
				t.Errorf("StripCodeFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToJSON(t *testing.T) {
	if got := ToJSON(map[string]int{"a": 1}); got != `{"a":1}` {
		t.Errorf("ToJSON() = %q", got)
	}
	if got := ToJSON(make(chan int)); got != "" {
		t.Errorf("ToJSON() of unsupported type = %q, want empty", got)
	}
}
