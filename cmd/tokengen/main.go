package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/parleyhq/parley/internal/security"
)

// tokengen mints bearer tokens signed with the internal secret, for
// exercising the API without the external identity provider.
func main() {
	user := flag.String("user", "", "user id to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("AUTH_INTERNAL_SECRET"), "signing secret (defaults to AUTH_INTERNAL_SECRET)")
	flag.Parse()

	if *user == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -user <id> [-ttl 24h] [-secret <internal secret>]")
		os.Exit(2)
	}

	token, err := security.NewIssuer(*secret, *ttl).IssueForUser(*user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
