package output

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ConfirmPrompt asks for user confirmation and returns true if confirmed.
func ConfirmPrompt(message string) (bool, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("%s [y/N]: ", message)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}
