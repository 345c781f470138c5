package segment

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single without mark", "hello there", []string{"hello there"}},
		{"two sentences", "Hi. How are you?", []string{"Hi. ", "How are you?"}},
		{"whitespace run stays attached", "Yes!\n\n  Sure.", []string{"Yes!\n\n  ", "Sure."}},
		{"trailing whitespace", "Done.  ", []string{"Done.  "}},
		{"decimal is not a boundary", "It costs 3.50 today. Thanks!", []string{"It costs 3.50 today. ", "Thanks!"}},
		{"ellipsis", "Well... maybe.", []string{"Well... ", "maybe."}},
		{"leading whitespace", "  Hello. Bye", []string{"  Hello. ", "Bye"}},
		{"unicode", "Ça va? Très bien.", []string{"Ça va? ", "Très bien."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Split(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitReconstructs(t *testing.T) {
	inputs := []string{
		"",
		" ",
		"...",
		"?! ?!",
		"Table for two? Of course. Right this way!",
		"No punctuation at all",
		"Tabs\tand.\tnewlines!\nmixed?\r\nend",
		"Emoji 🎉! works. ",
		"a.b.c. d",
	}
	for _, in := range inputs {
		if got := strings.Join(Split(in), ""); got != in {
			t.Fatalf("join(Split(%q)) = %q", in, got)
		}
	}
}

func TestSpeakable(t *testing.T) {
	got := Speakable("Hello!   How can I help?  \n")
	want := []string{"Hello!", "How can I help?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Speakable = %q, want %q", got, want)
	}

	if got := Speakable("   \n "); len(got) != 0 {
		t.Fatalf("expected no speakable segments, got %q", got)
	}
}
