package youtube

import "testing"

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch URL extra params", "https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ"},
		{"short URL", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"embed URL", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts URL", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"bare ID", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"bare ID with whitespace", "  dQw4w9WgXcQ  ", "dQw4w9WgXcQ"},
		{"not a video", "https://example.com/watch?v=dQw4w9WgXcQ", ""},
		{"too short", "abc123", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractVideoID(tt.in); got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractChannelRef(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantKind  ChannelRefKind
		wantValue string
	}{
		{"channel URL", "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw", RefChannelID, "UCuAXFkgsw1L7xaCfnd5JJOw"},
		{"bare channel ID", "UCuAXFkgsw1L7xaCfnd5JJOw", RefChannelID, "UCuAXFkgsw1L7xaCfnd5JJOw"},
		{"handle URL", "https://www.youtube.com/@veritasium", RefHandle, "veritasium"},
		{"handle URL with path", "https://www.youtube.com/@veritasium/videos", RefHandle, "veritasium"},
		{"bare handle", "@veritasium", RefHandle, "veritasium"},
		{"legacy user URL", "https://www.youtube.com/user/numberphile", RefUser, "numberphile"},
		{"custom URL", "https://www.youtube.com/c/3blue1brown", RefCustom, "3blue1brown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := ExtractChannelRef(tt.in)
			if ref == nil {
				t.Fatalf("ExtractChannelRef(%q) = nil", tt.in)
			}
			if ref.Kind != tt.wantKind || ref.Value != tt.wantValue {
				t.Errorf("ExtractChannelRef(%q) = {%s %s}, want {%s %s}",
					tt.in, ref.Kind, ref.Value, tt.wantKind, tt.wantValue)
			}
		})
	}

	for _, in := range []string{"", "not a channel", "https://example.com/@foo"} {
		if ref := ExtractChannelRef(in); ref != nil {
			t.Errorf("ExtractChannelRef(%q) = %+v, want nil", in, ref)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple object", `{"a":1};var x`, `{"a":1}`},
		{"nested braces", `{"a":{"b":{"c":3}}}trailing`, `{"a":{"b":{"c":3}}}`},
		{"brace inside string", `{"a":"}{"}rest`, `{"a":"}{"}`},
		{"escaped quote in string", `{"a":"say \"}\""}rest`, `{"a":"say \"}\""}`},
		{"unterminated", `{"a":1`, ""},
		{"not an object", `[1,2,3]`, ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(extractJSON([]byte(tt.in)))
			if got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNeedsPoToken(t *testing.T) {
	if !needsPoToken("https://www.youtube.com/api/timedtext?v=x&exp=xpe&lang=en") {
		t.Error("expected PoToken requirement for &exp=xpe URL")
	}
	if needsPoToken("https://www.youtube.com/api/timedtext?v=x&lang=en") {
		t.Error("did not expect PoToken requirement for plain URL")
	}
}
