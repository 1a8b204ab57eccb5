// genkey generates the key material a kaiwa deployment needs:
//
//   - an Ed25519 key pair for signing API tokens (KAIWA_JWT_PRIVATE_KEY and
//     KAIWA_JWT_PUBLIC_KEY)
//   - a secretbox key for sealing custom provider credentials at rest
//     (KAIWA_SECRET_KEY)
//
// Usage (run from the repo root):
//
//	go run ./scripts/genkey [-dir data]
//
// The PEM files are written with mode 0600 and existing files are never
// overwritten, since replacing the JWT keys invalidates every issued token.
// The secret key is printed, not written: store it with the rest of the
// deployment's secrets. Losing it makes stored credentials unreadable.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ashita-ai/kaiwa/internal/secret"
)

func main() {
	dir := flag.String("dir", "data", "directory for the JWT key files")
	flag.Parse()
	if err := run(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "genkey: %v\n", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	privPath := filepath.Join(dir, "jwt_private.pem")
	pubPath := filepath.Join(dir, "jwt_public.pem")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, delete it first to rotate keys", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	if err := writePEM(privPath, "PRIVATE KEY", privDER); err != nil {
		return err
	}
	if err := writePEM(pubPath, "PUBLIC KEY", pubDER); err != nil {
		return err
	}

	sealKey, err := secret.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate secret key: %w", err)
	}

	fmt.Printf("KAIWA_JWT_PRIVATE_KEY=%s\n", privPath)
	fmt.Printf("KAIWA_JWT_PUBLIC_KEY=%s\n", pubPath)
	fmt.Printf("KAIWA_SECRET_KEY=%s\n", sealKey)
	return nil
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path is built from a flag
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
