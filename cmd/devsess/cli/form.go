package cli

import (
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// NewAccessibleForm builds a huh form that degrades to plain text prompts
// when ACCESSIBLE is set or stdin is not a terminal. Screen readers and
// scripted runs both need the non-TUI path.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	accessible := os.Getenv("ACCESSIBLE") != "" || !term.IsTerminal(int(os.Stdin.Fd()))
	return huh.NewForm(groups...).WithAccessible(accessible)
}

// confirm prompts for a yes/no decision. Aborting the prompt counts as "no"
// without an error.
func confirm(title, description string) (bool, error) {
	var confirmed bool
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return confirmed, nil
}
