// Command treasuryctl mints caller tokens and derives proof tokens for operating
// the treasury API.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/auth"
	"github.com/medtreasury/medtreasury/internal/config"
	"github.com/medtreasury/medtreasury/internal/credential"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "treasuryctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: treasuryctl <token|proof> [flags]")
	}
	switch args[0] {
	case "token":
		return tokenCmd(args[1:], out)
	case "proof":
		return proofCmd(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func tokenCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	acct := fs.String("account", "", "caller account the token asserts")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	caller, err := account.Parse(*acct)
	if err != nil {
		return err
	}
	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, exp, err := auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer, lifetime).Sign(caller)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}

func proofCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("proof", flag.ContinueOnError)
	secret := fs.String("secret", "", "secret the proof token is derived from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return fmt.Errorf("-secret is required")
	}
	fmt.Fprintln(out, credential.DeriveProofToken(*secret))
	return nil
}
