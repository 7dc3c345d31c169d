// Package interactive drives the Claude CLI's login screens over a container exec
// session: it classifies terminal output and answers each screen with the keystroke
// a person would type.
package interactive

import "fmt"

// LoginKind enumerates the screens the CLI shows during login.
type LoginKind int

const (
	DarkMode LoginKind = iota
	PressEnterToRetry
	SelectLoginMethod
	ProvideURL
	WaitingForCode
	LoginSuccessful
	SecurityNotes
	TrustFiles
	Completed
	Error
)

var kindNames = map[LoginKind]string{
	DarkMode:          "dark_mode",
	PressEnterToRetry: "press_enter_to_retry",
	SelectLoginMethod: "select_login_method",
	ProvideURL:        "provide_url",
	WaitingForCode:    "waiting_for_code",
	LoginSuccessful:   "login_successful",
	SecurityNotes:     "security_notes",
	TrustFiles:        "trust_files",
	Completed:         "completed",
	Error:             "error",
}

func (k LoginKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("login_kind(%d)", int(k))
}

// LoginState is one classified screen. URL is set for ProvideURL and Message for
// Completed and Error.
type LoginState struct {
	Kind    LoginKind
	URL     string
	Message string
}

// Terminal reports whether the driver stops after this state.
func (s LoginState) Terminal() bool {
	return s.Kind == Completed || s.Kind == Error
}

func (s LoginState) String() string {
	switch {
	case s.URL != "":
		return fmt.Sprintf("%s(%s)", s.Kind, s.URL)
	case s.Message != "":
		return fmt.Sprintf("%s(%s)", s.Kind, s.Message)
	default:
		return s.Kind.String()
	}
}

func loginError(format string, args ...any) LoginState {
	return LoginState{Kind: Error, Message: fmt.Sprintf(format, args...)}
}
