package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"

	"github.com/alecthomas/kong"
	"github.com/dirseal/dirseal"
	"github.com/sirupsen/logrus"
)

// version is set by `go build`
var version = "<version>"

// CLI commands (see https://github.com/alecthomas/kong)
var CLI struct {
	Debug int `short:"v" type:"counter" help:"Enable debug output (-v for per-file progress)."`

	Version struct {
	} `cmd:"" help:"Show the program version."`

	Encrypt struct {
		Destination string `short:"d" type:"path"  help:"Directory for the encrypted output. If none provided, the source is used and the originals are removed after encryption."`
		PublicKey   string `short:"k" default:"./key.public" type:"path"  help:"Path to the PEM-encoded RSA public key."`
		Workers     int    `short:"w" default:"1"  help:"Number of files to encrypt concurrently."`
		//-----------------
		Source string `arg:"" type:"existingdir"  help:"Directory with the files to encrypt."`
	} `cmd:"" help:"Encrypt all files under a directory."`

	Decrypt struct {
		Destination string `short:"d" type:"path"  help:"Directory for the restored files. If none provided, the source is used and the encrypted files are removed after restore."`
		PrivateKey  string `short:"k" default:"./key.private" type:"path"  help:"Path to the PEM-encoded RSA private key."`
		//-----------------
		Source string `arg:"" type:"existingdir"  help:"Directory holding a previously encrypted tree."`
	} `cmd:"" help:"Restore a previously encrypted directory."`
}

func main() {
	description := "The program encrypts directory trees with pseudonymous file names and a wrapped per-run key."
	ctx := kong.Parse(&CLI, kong.UsageOnError(), kong.Description(description))
	switch ctx.Selected().Name {

	case "version":
		fmt.Printf("%s %s\n", path.Base(os.Args[0]), version)
		fmt.Printf("%s %s/%s (%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.Compiler)

	case "encrypt":
		a := CLI.Encrypt
		if _, err := os.Stat(a.PublicKey); err != nil {
			fail(fmt.Errorf("public key not found: %s", a.PublicKey))
		}
		cfg := &dirseal.Config{
			Source:        mustAbs(a.Source),
			Dest:          absOrEmpty(a.Destination),
			PublicKeyPath: mustAbs(a.PublicKey),
			Workers:       a.Workers,
			Logger:        newLogger(CLI.Debug),
		}
		p, err := dirseal.New(&osFS{}, cfg)
		if err != nil {
			fail(err)
		}
		summary, err := p.EncryptTree()
		if err != nil {
			fail(err)
		}
		fmt.Printf("encrypted %d files (%d bytes) into %s\n", summary.Files, summary.Bytes, cfg.DestRoot())

	case "decrypt":
		a := CLI.Decrypt
		if _, err := os.Stat(a.PrivateKey); err != nil {
			fail(fmt.Errorf("private key not found: %s", a.PrivateKey))
		}
		cfg := &dirseal.Config{
			Source:         mustAbs(a.Source),
			Dest:           absOrEmpty(a.Destination),
			PrivateKeyPath: mustAbs(a.PrivateKey),
			Logger:         newLogger(CLI.Debug),
		}
		p, err := dirseal.New(&osFS{}, cfg)
		if err != nil {
			fail(err)
		}
		summary, err := p.DecryptTree()
		if err != nil {
			fail(err)
		}
		fmt.Printf("restored %d files (%d bytes) into %s\n", summary.Files, summary.Bytes, cfg.DestRoot())

	default:
		fail(fmt.Errorf("unknown command: %s", ctx.Selected().Name))
	}
}

func newLogger(debug int) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if debug > 0 {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		fail(err)
	}
	return abs
}

func absOrEmpty(p string) string {
	if p == "" {
		return ""
	}
	return mustAbs(p)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
