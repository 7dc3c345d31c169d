package interactive

import (
	"math/rand"
	"testing"
)

func TestStripANSI(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"\x1b[1mBold\x1b[0m", "Bold"},
		{"\x1b[38;5;208mSelect login method:\x1b[39m", "Select login method:"},
		{"\x1b[2K\x1b[1Aredraw", "redraw"},
		{"lone \x1b escape", "lone \x1b escape"},
		{"\x1b]0;title\x07x", "\x1b]0;title\x07x"},
		{"unterminated \x1b[12", "unterminated "},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripANSI(tc.in); got != tc.want {
			t.Errorf("StripANSI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want LoginState
	}{
		{"dark mode", "Dark mode enabled", LoginState{Kind: DarkMode}},
		{"provide url inline", "Use the url below to sign in: https://example.com/x", LoginState{Kind: ProvideURL, URL: "https://example.com/x"}},
		{"trust files", "Do you trust the files in this folder?", LoginState{Kind: TrustFiles}},
		{"select login method", "Select login method:\n > Claude account", LoginState{Kind: SelectLoginMethod}},
		{"provide url own line", "Browser didn't open? Use the url below to sign in\n\n  https://claude.ai/oauth/authorize?code=true&x=1  \n", LoginState{Kind: ProvideURL, URL: "https://claude.ai/oauth/authorize?code=true&x=1"}},
		{"provide url missing", "Use the url below to sign in", LoginState{Kind: ProvideURL}},
		{"waiting for code", "Paste code here if prompted >", LoginState{Kind: WaitingForCode}},
		{"login successful", "Login successful. Press Enter to continue", LoginState{Kind: LoginSuccessful}},
		{"security notes", "Security notes:\n 1. Claude can make mistakes", LoginState{Kind: SecurityNotes}},
		{"press enter to retry", "OAuth error: timeout. Press Enter to retry.", LoginState{Kind: PressEnterToRetry}},
		{"case insensitive", "LOGIN SUCCESSFUL", LoginState{Kind: LoginSuccessful}},
		{"precedence", "Select login method / Dark mode", LoginState{Kind: DarkMode}},
		{"fallback", "╭──────────╮ spinner", LoginState{Kind: DarkMode}},
		{"empty", "", LoginState{Kind: DarkMode}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.in); got != tc.want {
				t.Fatalf("Classify(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestClassifyAfterStripANSI(t *testing.T) {
	raw := "\x1b[1mPaste code\x1b[0m here if prompted\x1b[22m"
	if got := Classify(StripANSI(raw)); got.Kind != WaitingForCode {
		t.Fatalf("got %v, want waiting_for_code", got)
	}
}

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	alphabet := []byte("abcdefghijklmnopqrstuvwxyz ABCDEFGHIJKLMNOPQRSTUVWXYZ:/.?\n\x1b[0123456789")
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(80))
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		in := string(buf)
		first := Classify(StripANSI(in))
		second := Classify(StripANSI(in))
		if first != second {
			t.Fatalf("classification of %q is not deterministic: %v vs %v", in, first, second)
		}
		if first.Terminal() {
			t.Fatalf("classifier produced terminal state %v for %q", first, in)
		}
		if _, ok := kindNames[first.Kind]; !ok {
			t.Fatalf("classifier produced unknown kind %d for %q", first.Kind, in)
		}
	}
}

func TestExtractURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"visit https://a.example/p?q=1 now", "https://a.example/p?q=1"},
		{"see below\nhttps://a.example/own-line\nand https://b.example", "https://a.example/own-line"},
		{"http://insecure.example", ""},
		{"no link here", ""},
		{"trailing https://end.example", "https://end.example"},
	}
	for _, tc := range cases {
		if got := extractURL(tc.in); got != tc.want {
			t.Errorf("extractURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
