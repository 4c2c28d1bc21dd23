package accounts

import (
	"context"
	"fmt"
)

type consoleMailer struct{}

// NewConsoleMailer returns a Mailer that prints the passcode to stdout.
// Useful for local development; production wiring supplies a real
// transport behind the Mailer interface.
func NewConsoleMailer() Mailer {
	return consoleMailer{}
}

func (consoleMailer) Send(_ context.Context, address, code string) error {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s\n", address)
	fmt.Printf("your one time passcode is: %s\n", code)
	return nil
}
