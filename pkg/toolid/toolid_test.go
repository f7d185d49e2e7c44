package toolid

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		method, path string
	}{
		{"GET", "/pets"},
		{"GET", "/pets/{petId}"},
		{"POST", "/api/widgets/{widgetId}:activate"},
		{"DELETE", "/a/b/{x}/{y}/c"},
	}
	for _, c := range cases {
		id, err := Encode(c.method, c.path)
		if err != nil {
			t.Fatalf("Encode(%q, %q): %v", c.method, c.path, err)
		}
		gotMethod, gotPath, err := Decode(id)
		if err != nil {
			t.Fatalf("Decode(%q): %v", id, err)
		}
		if gotMethod != c.method || gotPath != c.path {
			t.Errorf("round trip mismatch: got (%q, %q), want (%q, %q) [id=%q]", gotMethod, gotPath, c.method, c.path, id)
		}
	}
}

func TestEncodeRejectsDoubleColon(t *testing.T) {
	if _, err := Encode("POST", "/api/x::y"); err == nil {
		t.Fatal("expected error for path containing ::")
	}
}

func TestEncodeRejectsEmptyMethod(t *testing.T) {
	if _, err := Encode("", "/pets"); err == nil {
		t.Fatal("expected error for empty method")
	}
}

func TestEncodeGoogleRPCSuffix(t *testing.T) {
	id, err := Encode("POST", "/api/widgets/{widgetId}:activate")
	if err != nil {
		t.Fatal(err)
	}
	want := "POST::api__widgets__---widgetId:activate"
	if id != want {
		t.Errorf("got %q, want %q", id, want)
	}
}

func TestInterpolatePreservesRPCColon(t *testing.T) {
	got := Interpolate("/api/widgets/---widgetId:activate", map[string]string{"widgetId": "12345"})
	want := "/api/widgets/12345:activate"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInterpolateBraceStyle(t *testing.T) {
	got := Interpolate("/pets/{petId}", map[string]string{"petId": "42"})
	if got != "/pets/42" {
		t.Errorf("got %q", got)
	}
}
