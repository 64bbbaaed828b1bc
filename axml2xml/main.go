package main

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/avast/apkverifier"
	"github.com/op/go-logging"
	"github.com/urfave/cli/v2"

	"github.com/avast/axml"
)

const progName = "axml2xml"

var log = logging.MustGetLogger(progName)

func main() {
	app := &cli.App{
		Name:      progName,
		Usage:     "decode Android binary XML into readable XML",
		ArgsUsage: "INPUT|-",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "apk", Aliases: []string{"a"}, Usage: "The input file is an apk"},
			&cli.StringFlag{Name: "entry", Aliases: []string{"e"}, Value: axml.ManifestName, Usage: "binary xml entry to decode from the apk"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML file with decoder options"},
			&cli.BoolFlag{Name: "strict", Usage: "fail on string ids outside of the string pool"},
			&cli.BoolFlag{Name: "verify", Usage: "verify the apk signature before decoding"},
			&cli.BoolFlag{Name: "tree", Usage: "print an element outline instead of xml"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startLogging(verbose bool) {
	backend := logging.NewLogBackend(os.Stderr, progName+": ", 0)
	formatter := logging.MustStringFormatter("%{level:8s} %{module:-10s} | %{message}")
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, formatter))
	if verbose {
		leveled.SetLevel(logging.DEBUG, "")
	} else {
		leveled.SetLevel(logging.INFO, "")
	}
	logging.SetBackend(leveled)
}

func run(c *cli.Context) error {
	startLogging(c.Bool("verbose"))

	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("%s [options] INPUT", progName), 1)
	}
	input := c.Args().First()

	opts := axml.DefaultOptions()
	if path := c.String("config"); path != "" {
		var err error
		if opts, err = axml.LoadOptions(path); err != nil {
			return err
		}
	}
	if c.Bool("strict") {
		opts.Strict = true
	}

	var diagnostics int
	opts.Diagnostics = func(axml.Diagnostic) { diagnostics++ }

	isApk := c.Bool("apk") || strings.HasSuffix(input, ".apk")
	if c.Bool("verify") {
		if !isApk {
			return cli.Exit("--verify needs an apk input", 1)
		}
		res, err := apkverifier.Verify(input, nil)
		if err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
		log.Infof("signature verified, scheme v%d", res.SigningSchemeId)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	var (
		sink axml.Sink
		tree *axml.TreeSink
	)
	if c.Bool("tree") {
		tree = &axml.TreeSink{}
		sink = tree
	} else {
		enc := xml.NewEncoder(out)
		enc.Indent("", "    ")
		encSink := axml.NewEncoderSink(enc)
		encSink.Declaration = true
		sink = encSink
	}

	if err := decode(input, isApk, c.String("entry"), sink, opts); err != nil {
		return err
	}

	if tree != nil {
		printOutline(out, tree.Root(), 0)
	} else {
		fmt.Fprintln(out)
	}

	if diagnostics != 0 {
		log.Warningf("%d decoding problems, the output may be incomplete", diagnostics)
	}
	return nil
}

func decode(input string, isApk bool, entry string, sink axml.Sink, opts axml.Options) error {
	if isApk {
		return axml.DecodeApkFile(input, entry, sink, opts)
	}

	var r io.Reader
	if input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return axml.NewDecoder(opts).Decode(bufio.NewReader(r), sink)
}

func printOutline(w io.Writer, n *axml.Node, depth int) {
	if n == nil {
		return
	}

	fmt.Fprintf(w, "%s%s", strings.Repeat("  ", depth), n.QualifiedName())
	for _, ns := range n.Namespaces {
		fmt.Fprintf(w, " xmlns:%s=%q", ns.Prefix, ns.Uri)
	}
	for _, a := range n.Attrs {
		fmt.Fprintf(w, " %s", a)
	}
	fmt.Fprintln(w)

	for _, child := range n.Elements() {
		printOutline(w, child, depth+1)
	}
}
