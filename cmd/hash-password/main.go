// Command hash-password produces the bcrypt hash for AUTH_PASSWORD_HASH.
// The password is read from stdin so it does not end up in shell history.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"schwab-invest-bot/internal/auth"
)

func main() {
	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		log.Fatalf("Failed to read password: %v", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		log.Fatal("Empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}
