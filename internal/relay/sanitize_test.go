package relay

import "testing"

func TestSanitizeFilenameStripsPathSeparators(t *testing.T) {
	got := SanitizeFilename("../../etc/passwd")
	if got != "passwd" {
		t.Fatalf("got %q, want %q", got, "passwd")
	}
}

func TestSanitizeFilenameStripsWindowsPathSeparators(t *testing.T) {
	got := SanitizeFilename(`C:\Users\bob\report.docx`)
	if got != "report.docx" {
		t.Fatalf("got %q, want %q", got, "report.docx")
	}
}

func TestSanitizeFilenameReplacesUnsafeCharacters(t *testing.T) {
	got := SanitizeFilename(`weird<>:"|?*name.txt`)
	if got != "weird_______name.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeFilenameCollapsesWhitespace(t *testing.T) {
	got := SanitizeFilename("a\tb\r\nc   d.txt")
	if got != "abc d.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeFilenameRejectsDotAndEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", ".", "..", "/"} {
		if got := SanitizeFilename(in); got != "" {
			t.Fatalf("input %q: got %q, want empty", in, got)
		}
	}
}

func TestSanitizeFilenameTrimsTrailingDotsAndSpaces(t *testing.T) {
	got := SanitizeFilename("report...   ")
	if got != "report" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeFilenameIsIdempotent(t *testing.T) {
	inputs := []string{
		"normal.txt",
		"../../etc/passwd",
		`weird<>:"|?*name.txt`,
		"résumé final.pdf",
	}
	for _, in := range inputs {
		once := SanitizeFilename(in)
		twice := SanitizeFilename(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestSanitizeFilenameBoundsLength(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	got := SanitizeFilename(string(long))
	if len(got) > maxFilenameBytes {
		t.Fatalf("got length %d, want <= %d", len(got), maxFilenameBytes)
	}
}

func TestSanitizeFilenamePreservesUnicode(t *testing.T) {
	got := SanitizeFilename("résumé.pdf")
	if got != "résumé.pdf" {
		t.Fatalf("got %q", got)
	}
}
