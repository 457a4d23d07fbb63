// Command woofctl is a thin exerciser of package woofdb, grounded on the
// teacher's flowctl/flowctl-go command-wrapper idiom: one go-flags parser,
// one subcommand struct per operation, coloured status output.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"

	"github.com/estuary/woofdb"
	"github.com/estuary/woofdb/txnlog"
)

type openCmd struct {
	Path string `short:"p" long:"path" required:"true" description:"database path"`
	Name string `short:"n" long:"name" default:"default" description:"column family name"`
	Mode string `short:"m" long:"mode" default:"optimistic" choice:"optimistic" choice:"pessimistic"`
}

func (c *openCmd) Execute(args []string) error {
	var h, err = openHandle(c.Path, c.Name, c.Mode)
	if err != nil {
		return err
	}
	defer h.Close()
	color.Green("opened %s (cf=%s, mode=%s)", c.Path, c.Name, c.Mode)
	return nil
}

type getCmd struct {
	Path string `short:"p" long:"path" required:"true"`
	Name string `short:"n" long:"name" default:"default"`
	Key  string `short:"k" long:"key" required:"true"`
}

func (c *getCmd) Execute(args []string) error {
	h, err := openHandle(c.Path, c.Name, "optimistic")
	if err != nil {
		return err
	}
	defer h.Close()

	v, err := h.Get([]byte(c.Key))
	if err != nil {
		return err
	}
	fmt.Println(string(v))
	return nil
}

type putCmd struct {
	Path  string `short:"p" long:"path" required:"true"`
	Name  string `short:"n" long:"name" default:"default"`
	Key   string `short:"k" long:"key" required:"true"`
	Value string `short:"v" long:"value" required:"true"`
}

func (c *putCmd) Execute(args []string) error {
	h, err := openHandle(c.Path, c.Name, "optimistic")
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.Put([]byte(c.Key), []byte(c.Value), false); err != nil {
		return err
	}
	color.Green("put ok")
	return nil
}

type rangeCmd struct {
	Path  string `short:"p" long:"path" required:"true"`
	Name  string `short:"n" long:"name" default:"default"`
	Start string `long:"start"`
	End   string `long:"end"`
}

func (c *rangeCmd) Execute(args []string) error {
	h, err := openHandle(c.Path, c.Name, "optimistic")
	if err != nil {
		return err
	}
	defer h.Close()

	var o woofdb.RangeOptions
	if c.Start != "" {
		o.Start = []byte(c.Start)
	}
	if c.End != "" {
		o.End = []byte(c.End)
		o.InclusiveEnd = true
	}
	o.Values = true

	it, err := h.GetRange(o)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		k, v, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Printf("%s=%s\n", k, v)
	}
	return nil
}

type logTailCmd struct {
	Path string `short:"p" long:"path" required:"true"`
	Name string `short:"n" long:"name" default:"audit" description:"transaction log name"`
}

func (c *logTailCmd) Execute(args []string) error {
	h, err := openHandle(c.Path, "default", "optimistic")
	if err != nil {
		return err
	}
	defer h.Close()

	log, err := h.CreateTransactionLog(c.Name)
	if err != nil {
		return err
	}
	defer log.Close()

	it, err := log.GetRange(txnlog.RangeOptions{})
	if err != nil {
		return err
	}

	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		fmt.Printf("txn=%d bytes=%d\n", e.TxnID, len(e.Data))
	}
	return nil
}

func openHandle(path, name, mode string) (*woofdb.DBHandle, error) {
	var m = woofdb.Optimistic
	if mode == "pessimistic" {
		m = woofdb.Pessimistic
	}
	return woofdb.Open(path, woofdb.OpenOptions{Name: name, Mode: m, ParallelismThreads: 1})
}

func main() {
	var parser = flags.NewParser(nil, flags.Default)
	parser.AddCommand("open", "open a database", "", &openCmd{})
	parser.AddCommand("get", "read a key", "", &getCmd{})
	parser.AddCommand("put", "write a key", "", &putCmd{})
	parser.AddCommand("range", "iterate a key range", "", &rangeCmd{})
	parser.AddCommand("log-tail", "print a transaction log's entries", "", &logTailCmd{})

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		color.Red("woofctl: %v", err)
		os.Exit(1)
	}
}
