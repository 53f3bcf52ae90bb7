// Command cbpsi-go runs the DDH private intersection-sum protocol.
//
//	cbpsi-go version
//	cbpsi-go gen-certs -names advertiser,merchant -out certs
//	cbpsi-go local [-config psi.yaml] [-v viewers.txt -w purchases.csv]
//	cbpsi-go party -role p2 -addr :8443 -w purchases.csv -certs certs
//	cbpsi-go party -role p1 -addr host:8443 -v viewers.txt -certs certs
//
// Without input files, local runs on a generated campaign.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/attribution"
	"github.com/coinbase/cb-psi-go/pkg/psi/ddhpsi"
	"github.com/coinbase/cb-psi-go/pkg/psi/logging"
	"github.com/coinbase/cb-psi-go/pkg/psi/tlsnet"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "version":
		fmt.Printf("cb-psi-go %s (wire v%d)\n", psi.WrapperVersion(), psi.WireVersion)
	case "gen-certs":
		err = genCerts(args)
	case "local":
		err = runLocal(ctx, args)
	case "party":
		err = runParty(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbpsi-go %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cbpsi-go version | gen-certs | local | party [flags]")
}

func newLogger(verbose bool) logging.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig(path string) (psi.Config, error) {
	if path == "" {
		return psi.DefaultConfig(), nil
	}
	cfg, err := psi.LoadConfig(path)
	if err != nil {
		return psi.Config{}, err
	}
	return *cfg, nil
}

func genCerts(args []string) error {
	fs := flag.NewFlagSet("gen-certs", flag.ExitOnError)
	var (
		names = fs.String("names", "advertiser,merchant", "comma-separated party names")
		out   = fs.String("out", "certs", "output directory")
		days  = fs.Int("days", 365, "certificate validity in days")
	)
	_ = fs.Parse(args)

	pki, err := tlsnet.GenerateCertificates(strings.Split(*names, ","), time.Duration(*days)*24*time.Hour)
	if err != nil {
		return err
	}
	return pki.Write(*out)
}

func runLocal(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("local", flag.ExitOnError)
	var (
		cfgPath    = fs.String("config", "", "YAML protocol configuration")
		viewers    = fs.String("v", "", "party 1 identifiers, one per line")
		purchases  = fs.String("w", "", "party 2 records as identifier,value CSV")
		sampleV    = fs.Int("sample-viewers", 1000, "generated ad viewers when -v is not set")
		sampleW    = fs.Int("sample-purchasers", 200, "generated purchasers when -w is not set")
		sampleRate = fs.Float64("sample-overlap", 0.25, "generated fraction of attributed purchases")
		verbose    = fs.Bool("debug", false, "debug logging")
	)
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	var (
		ids     [][]byte
		records []psi.Record
	)
	switch {
	case *viewers != "" && *purchases != "":
		if ids, err = loadIdentifiers(*viewers); err != nil {
			return err
		}
		if records, err = loadRecords(*purchases); err != nil {
			return err
		}
	case *viewers == "" && *purchases == "":
		seed := uint64(time.Now().UnixNano())
		if ids, records, err = attribution.Sample(rand.New(rand.NewPCG(seed, seed>>1)), *sampleV, *sampleW, *sampleRate); err != nil {
			return err
		}
	default:
		return errors.New("-v and -w must be given together")
	}

	log := newLogger(*verbose)
	opts := []ddhpsi.Option{ddhpsi.WithLogger(log)}
	res, err := ddhpsi.RunLocal(ctx, cfg, ids, records, opts, opts)
	if err != nil {
		return err
	}
	report, err := attribution.New(len(ids), records, res.Party2)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}

func runParty(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("party", flag.ExitOnError)
	var (
		cfgPath   = fs.String("config", "", "YAML protocol configuration")
		roleName  = fs.String("role", "", "p1 (identifiers) or p2 (valued records)")
		names     = fs.String("names", "advertiser,merchant", "party 1 and party 2 certificate names")
		addr      = fs.String("addr", "localhost:8443", "party 2 address; party 2 listens on it")
		certDir   = fs.String("certs", "certs", "directory written by gen-certs")
		viewers   = fs.String("v", "", "party 1 identifiers, one per line")
		purchases = fs.String("w", "", "party 2 records as identifier,value CSV")
		verbose   = fs.Bool("debug", false, "debug logging")
	)
	_ = fs.Parse(args)

	var role psi.Role
	switch *roleName {
	case "p1":
		role = psi.RoleP1
	case "p2":
		role = psi.RoleP2
	default:
		return fmt.Errorf("unknown role %q", *roleName)
	}
	parts := strings.Split(*names, ",")
	if len(parts) != 2 {
		return fmt.Errorf("-names needs exactly two names, got %q", *names)
	}
	pnames := [2]string{parts[0], parts[1]}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	b, err := ddhpsi.Setup(cfg)
	if err != nil {
		return err
	}
	pool, err := tlsnet.LoadCertPool(filepath.Join(*certDir, "rootCA.pem"))
	if err != nil {
		return err
	}
	self := pnames[role]
	cert, err := tlsnet.LoadKeyPair(filepath.Join(*certDir, self+"-cert.pem"), filepath.Join(*certDir, self+"-key.pem"))
	if err != nil {
		return err
	}
	netCfg := tlsnet.Config{Role: role, Names: pnames, Certificate: cert, RootCAs: pool}
	netCfg.Addresses[psi.RoleP2] = *addr

	log := newLogger(*verbose)
	tr, err := tlsnet.New(ctx, netCfg)
	if err != nil {
		return err
	}
	defer tr.Close()
	job, err := psi.NewJob2PWithContext(ctx, tr, role, pnames)
	if err != nil {
		return err
	}
	defer job.Close()

	if role == psi.RoleP1 {
		ids, err := loadIdentifiers(*viewers)
		if err != nil {
			return err
		}
		p1, err := ddhpsi.NewParty1(cfg, b, ddhpsi.WithLogger(log))
		if err != nil {
			return err
		}
		res, err := p1.Run(ctx, job, ids)
		if err != nil {
			return err
		}
		fmt.Printf("intersection size: %d\n", res.IntersectionSize)
		return nil
	}

	records, err := loadRecords(*purchases)
	if err != nil {
		return err
	}
	p2, err := ddhpsi.NewParty2(cfg, b, ddhpsi.WithLogger(log))
	if err != nil {
		return err
	}
	res, err := p2.Run(ctx, job, records)
	if err != nil {
		return err
	}
	report, err := attribution.New(res.PeerSetSize, records, res)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}
