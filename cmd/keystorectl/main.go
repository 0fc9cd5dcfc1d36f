// Command keystorectl inspects and maintains a keystore offline.
//
// The keystore secret and KDF settings come from the same environment
// variables walletd reads. Stop walletd before running it: the file backend
// has no cross-process lock.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/AlexZinkM/local-keystore/internal/app"
	"github.com/AlexZinkM/local-keystore/internal/common"
	"github.com/AlexZinkM/local-keystore/internal/config"
	"github.com/AlexZinkM/local-keystore/internal/logger"
	"github.com/AlexZinkM/local-keystore/internal/store"
)

// keystoreOptions override KEYSTORE_BACKEND and KEYSTORE_PATH.
type keystoreOptions struct {
	Backend string `short:"b" long:"backend" description:"Keystore backend {file, bolt}; defaults to KEYSTORE_BACKEND"`
	Path    string `short:"p" long:"path" description:"Keystore path; defaults to KEYSTORE_PATH"`
}

type listCommand struct {
	keystoreOptions
	out io.Writer
}

type verifyCommand struct {
	keystoreOptions
	out io.Writer
}

type migrateCommand struct {
	FromBackend string `long:"from-backend" default:"file" description:"Source backend {file, bolt}"`
	From        string `long:"from" required:"true" description:"Source keystore path"`
	ToBackend   string `long:"to-backend" default:"bolt" description:"Target backend {file, bolt}"`
	To          string `long:"to" required:"true" description:"Target keystore path"`
	Force       bool   `long:"force" description:"Overwrite a non-empty target"`
	out         io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return
		}
		fmt.Fprintln(os.Stderr, "keystorectl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	parser := flags.NewNamedParser("keystorectl", flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.AddCommand("list", "List wallets",
		"Prints public key, label and cached balance of every wallet.", &listCommand{out: out}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("verify", "Verify every encrypted key",
		"Decrypts every record with the process key and checks it derives the stored public key.", &verifyCommand{out: out}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("migrate", "Copy a keystore between backends",
		"Copies every record from one keystore to another. Records are copied encrypted; no secret is needed.", &migrateCommand{out: out}); err != nil {
		return err
	}
	_, err := parser.ParseArgs(args)
	return err
}

func (o keystoreOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.apply)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogLevel, false)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (o keystoreOptions) apply(cfg *config.Config) {
	if o.Backend != "" {
		cfg.KeystoreBackend = o.Backend
	}
	if o.Path != "" {
		cfg.KeystorePath = o.Path
	}
}

func (c *listCommand) Execute([]string) error {
	cfg, _, err := c.load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.KeystoreBackend, cfg.KeystorePath, cfg.IOTimeout)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.Load(context.Background())
	if err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Fprintf(c.out, "%s\t%s\t%s SOL\n", rec.PublicKey, rec.Label, common.LamportsToSOL(rec.Balance))
	}
	return nil
}

func (c *verifyCommand) Execute([]string) error {
	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	key, err := app.ProcessKey(cfg, log)
	if err != nil {
		return err
	}
	defer clear(key)

	ks, err := app.OpenKeystore(ctx, cfg, key, log)
	if err != nil {
		return err
	}
	defer ks.Close()

	records := ks.Directory.GetAllWallets()
	failed := 0
	for _, rec := range records {
		priv, err := ks.Directory.DecryptSecretKey(rec.PublicKey)
		if err != nil {
			failed++
			fmt.Fprintf(c.out, "FAIL\t%s\t%v\n", rec.PublicKey, err)
			continue
		}
		clear(priv)
		fmt.Fprintf(c.out, "OK\t%s\n", rec.PublicKey)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed verification", failed, len(records))
	}
	return nil
}

func (c *migrateCommand) Execute([]string) error {
	ctx := context.Background()

	src, err := store.Open(c.FromBackend, c.From, store.DefaultIOTimeout)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := store.Open(c.ToBackend, c.To, store.DefaultIOTimeout)
	if err != nil {
		return err
	}
	defer dst.Close()

	records, err := src.Load(ctx)
	if err != nil {
		return err
	}
	existing, err := dst.Load(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !c.Force {
		return fmt.Errorf("target keystore %s already holds %d records; use --force to overwrite", c.To, len(existing))
	}

	if err := dst.Save(ctx, records); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "migrated %d records from %s (%s) to %s (%s)\n", len(records), c.From, c.FromBackend, c.To, c.ToBackend)
	return nil
}
