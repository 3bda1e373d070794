// Prints a fresh random secret for the jwt.secret_key config field.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
)

const secretLen = 32

func main() {
	key := make([]byte, secretLen)
	if _, err := rand.Read(key); err != nil {
		slog.Error("Failed to generate jwt secret", "err", err)
		os.Exit(1)
	}
	fmt.Println(base64.URLEncoding.EncodeToString(key))
}
