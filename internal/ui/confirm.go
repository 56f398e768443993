package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks a yes/no question on out and reads the answer from in.
// Anything but "y" or "yes" (case-insensitive), including EOF, is a no.
func Confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprint(out, PromptStyle.Render(question+" [y/N]: "))

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		fmt.Fprintln(out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	}
	fmt.Fprintln(out, TroubleshootingItemStyle.Render("  Cancelled."))
	return false
}
