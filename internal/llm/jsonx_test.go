package llm

import "testing"

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "bare array",
			input: `[{"a":1}]`,
			want:  `[{"a":1}]`,
			ok:    true,
		},
		{
			name:  "markdown fenced",
			input: "Here you go:\n```json\n[{\"text\": \"hi\"}]\n```\nLet me know!",
			want:  `[{"text": "hi"}]`,
			ok:    true,
		},
		{
			name:  "nested arrays",
			input: `prefix [[1,2],[3,4]] suffix`,
			want:  `[[1,2],[3,4]]`,
			ok:    true,
		},
		{
			name:  "bracket inside string literal",
			input: `[{"text": "todo: fix [urgent] item"}]`,
			want:  `[{"text": "todo: fix [urgent] item"}]`,
			ok:    true,
		},
		{
			name:  "escaped quote inside string",
			input: `[{"text": "she said \"hello [world]\" today"}]`,
			want:  `[{"text": "she said \"hello [world]\" today"}]`,
			ok:    true,
		},
		{
			name:  "no array",
			input: "I could not produce any segments, sorry.",
			ok:    false,
		},
		{
			name:  "unbalanced",
			input: `[{"a": 1}`,
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONArray(tt.input)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	input := "Sure! ```json\n{\"title\": \"My {braces} idea\", \"nested\": {\"x\": 1}}\n```"
	want := `{"title": "My {braces} idea", "nested": {"x": 1}}`

	got, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractJSONObjectPicksFirstSpan(t *testing.T) {
	got, err := ExtractJSONObject(`{"a":1} and also {"b":2}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("expected first object, got %q", got)
	}
}
