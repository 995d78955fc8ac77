package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
)

// sealKey reads a secret and a password from in, one per line, and writes
// the sealed blob to -out. The password can also come from
// HEDGEBOT_KEY_PASSWORD.
func sealKey(args []string, in io.Reader, msg io.Writer) error {
	fs := flag.NewFlagSet("seal-key", flag.ContinueOnError)
	fs.SetOutput(msg)
	out := fs.String("out", "hyperliquid.key.json", "path of the sealed key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := bufio.NewReader(in)
	fmt.Fprint(msg, "secret: ")
	secret, err := readLine(r)
	if err != nil {
		return err
	}
	password := os.Getenv("HEDGEBOT_KEY_PASSWORD")
	if password == "" {
		fmt.Fprint(msg, "password: ")
		if password, err = readLine(r); err != nil {
			return err
		}
	}

	blob, err := crypto.Seal([]byte(secret), password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Fprintf(msg, "\nsealed key written to %s\n", *out)
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}
