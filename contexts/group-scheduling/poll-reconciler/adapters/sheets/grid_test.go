package sheetsadapter

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "formatted us number", input: "(310) 600-1023", want: "13106001023"},
		{name: "already canonical", input: "13106001023", want: "13106001023"},
		{name: "whatsapp jid digits", input: "13106001023@c.us", want: "13106001023"},
		{name: "short number unchanged", input: "600-1023", want: "6001023"},
		{name: "no digits", input: "Jordan", want: ""},
		{name: "empty", input: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizePhone(tc.input); got != tc.want {
				t.Fatalf("normalizePhone(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestColumnLetter(t *testing.T) {
	cases := []struct {
		index int
		want  string
	}{
		{index: 0, want: "A"},
		{index: 1, want: "B"},
		{index: 25, want: "Z"},
		{index: 26, want: "AA"},
		{index: 51, want: "AZ"},
		{index: 52, want: "BA"},
		{index: 701, want: "ZZ"},
		{index: 702, want: "AAA"},
	}
	for _, tc := range cases {
		if got := columnLetter(tc.index); got != tc.want {
			t.Fatalf("columnLetter(%d) = %q, want %q", tc.index, got, tc.want)
		}
	}
}
