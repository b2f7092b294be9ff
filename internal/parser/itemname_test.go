// internal/parser/itemname_test.go
package parser

import "testing"

func TestDecomposeItemName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected NameParts
	}{
		{
			name:     "plain name",
			input:    "포션",
			expected: NameParts{BaseName: "포션"},
		},
		{
			name:     "refine and slots",
			input:    "+10매드니스 브레스 슈즈[2]",
			expected: NameParts{BaseName: "매드니스 브레스 슈즈", Refine: 10, SlotCount: 2},
		},
		{
			name:     "grade tag",
			input:    "[EPIC]세기말 블레이드[1]",
			expected: NameParts{BaseName: "세기말 블레이드", Grade: GradeEpic, SlotCount: 1},
		},
		{
			name:     "refine before grade",
			input:    "+7[RARE]카타르",
			expected: NameParts{BaseName: "카타르", Refine: 7, Grade: GradeRare},
		},
		{
			name:     "grade before refine",
			input:    "[LEGEND]+12나이트 스피어",
			expected: NameParts{BaseName: "나이트 스피어", Refine: 12, Grade: GradeLegend},
		},
		{
			name:     "lowercase grade normalized",
			input:    "[rare]건틀릿[2]",
			expected: NameParts{BaseName: "건틀릿", Grade: GradeRare, SlotCount: 2},
		},
		{
			name:     "surrounding whitespace",
			input:    "  +4 부츠 [1] ",
			expected: NameParts{BaseName: "부츠", Refine: 4, SlotCount: 1},
		},
		{
			name:     "slot-like tag mid-name stays",
			input:    "카드[1] 앨범",
			expected: NameParts{BaseName: "카드[1] 앨범"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecomposeItemName(tt.input)
			if got != tt.expected {
				t.Errorf("DecomposeItemName(%q) = %+v, want %+v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDecomposeItemName_CollapsesDoubledArtifact(t *testing.T) {
	got := DecomposeItemName("+10슈즈[1]+10슈즈[1]")
	want := NameParts{BaseName: "슈즈", Refine: 10, SlotCount: 1}
	if got != want {
		t.Errorf("doubled render not collapsed: %+v", got)
	}

	// A name that merely repeats a word is not the doubling artifact.
	got = DecomposeItemName("링 링")
	if got.BaseName != "링 링" {
		t.Errorf("legitimate repetition mangled: %+v", got)
	}
}

func TestComposeDisplayName(t *testing.T) {
	parts := NameParts{BaseName: "매드니스 브레스 슈즈", Refine: 10, SlotCount: 2}
	if got := ComposeDisplayName(parts); got != "+10매드니스 브레스 슈즈[2]" {
		t.Errorf("unexpected composition: %q", got)
	}

	parts = NameParts{BaseName: "카타르", Grade: GradeMythic}
	if got := ComposeDisplayName(parts); got != "[MYTHIC]카타르" {
		t.Errorf("unexpected composition: %q", got)
	}

	// Round trip.
	original := "+7[UNIQUE]바스타드 소드[3]"
	if got := ComposeDisplayName(DecomposeItemName(original)); got != "+7[UNIQUE]바스타드 소드[3]" {
		t.Errorf("round trip failed: %q -> %q", original, got)
	}
}
