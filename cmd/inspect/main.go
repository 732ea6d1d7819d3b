package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	limit := flag.Int("n", 10, "entries to print per dictionary, 0 for counts only")
	only := flag.String("field", "", "only print this field")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: inspect [flags] <partition dir>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	fields, err := loadFields(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading fields: %v\n", err)
		os.Exit(1)
	}
	code := 0
	for _, dir := range flag.Args() {
		if err := inspect(os.Stdout, filepath.Clean(dir), fields, *only, *limit); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", dir, err)
			code = 1
		}
	}
	os.Exit(code)
}

func loadFields(ctx context.Context, cfg *config.Config) (field.Lookup, error) {
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return field.NewPGRegistry(ctx, db)
	}
	r := field.NewRegistry()
	if err := field.Configure(ctx, r, cfg.Fields); err != nil {
		return nil, err
	}
	return r, nil
}

func inspect(w io.Writer, dir string, fields field.Lookup, only string, limit int) error {
	p, err := partition.Open(dir, fields, partition.OpenOptions{})
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Fprintf(w, "partition %s\n", partition.Name(p.Seq()))
	fmt.Fprintf(w, "  max doc id  %d\n", p.MaxDocID())
	fmt.Fprintf(w, "  live docs   %d\n", p.Live())
	fmt.Fprintf(w, "  fields      %d\n", len(p.FieldIDs()))
	if keys := p.DocKeys(); keys != nil && only == "" {
		fmt.Fprintf(w, "\n  doc keys (%d)\n", keys.Len())
		if err := printDict(w, keys, limit, plain); err != nil {
			return err
		}
	}

	for _, id := range p.FieldIDs() {
		b := p.FieldByID(id)
		info := b.Info()
		if only != "" && info.Name != only {
			continue
		}
		fmt.Fprintf(w, "\nfield %s (id %d, %s) [%s]\n", info.Name, info.ID, info.Type, info.Attrs)
		for k := field.DictKind(0); k < field.NumDictKinds; k++ {
			if d := b.Dict(k); d != nil {
				fmt.Fprintf(w, "  %s: %d entries, max id %d\n", k, d.Len(), d.MaxID())
				if err := printDict(w, d, limit, plain); err != nil {
					return err
				}
			}
		}
		if d := b.Ints(); d != nil {
			fmt.Fprintf(w, "  %s values: %d entries\n", info.Type, d.Len())
			format := func(v int64) string { return fmt.Sprint(v) }
			if info.Type == field.TypeDate {
				format = func(v int64) string { return dictionary.NameDate(v).Format(time.RFC3339Nano) }
			}
			if err := printDict(w, d, limit, format); err != nil {
				return err
			}
		}
		if d := b.Floats(); d != nil {
			fmt.Fprintf(w, "  float values: %d entries\n", d.Len())
			if err := printDict(w, d, limit, func(v float64) string { return fmt.Sprint(v) }); err != nil {
				return err
			}
		}
		if d := b.TokenBigrams(); d != nil {
			fmt.Fprintf(w, "  token bigrams: %d entries\n", d.Len())
		}
		if d := b.SavedBigrams(); d != nil {
			fmt.Fprintf(w, "  saved bigrams: %d entries\n", d.Len())
		}
	}
	return nil
}

func plain(s string) string { return s }

func printDict[N cmp.Ordered](w io.Writer, d *dictionary.Disk[N], limit int, format func(N) string) error {
	if limit <= 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "    id\tname\tdocs\ttotal")
	c := d.All()
	for i := 0; i < limit && c.Next(); i++ {
		e := c.Entry()
		fmt.Fprintf(tw, "    %d\t%q\t%d\t%d\n", e.ID, format(e.Name), e.N(), e.Total())
	}
	if err := c.Err(); err != nil {
		return err
	}
	return tw.Flush()
}
