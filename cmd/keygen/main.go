// Command keygen generates a token encryption key for the vault. Put the
// output in TOKEN_ENCRYPTION_KEY (or the remote vault secret) and keep it
// out of config files.
package main

import (
	"fmt"
	"log"

	"schwab-invest-bot/internal/vault"
)

func main() {
	key, err := vault.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}
	fmt.Println(key)
}
