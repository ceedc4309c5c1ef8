// Command gosqueak runs, inspects and takes censuses of Squeak images.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/gosqueak/census"
	"github.com/chazu/gosqueak/host"
	"github.com/chazu/gosqueak/manifest"
	"github.com/chazu/gosqueak/vm"
)

var log = commonlog.GetLogger("gosqueak")

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to gosqueak.toml (default: search upward from the working directory)",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "log at debug level",
	}
	stepsFlag = cli.IntFlag{
		Name:  "steps",
		Usage: "stop after this many bytecodes (0 runs until the image quits)",
	}
	profileFlag = cli.IntFlag{
		Name:  "profile",
		Usage: "after running, list the `N` most invoked methods",
	}
	specialFlag = cli.IntFlag{
		Name:  "special",
		Value: -1,
		Usage: "inspect special object `INDEX` instead of the special objects array",
	}
	depthFlag = cli.IntFlag{
		Name:  "depth",
		Value: vm.DefaultMaxDepth,
		Usage: "inspection depth",
	}
	topFlag = cli.IntFlag{
		Name:  "top",
		Value: 20,
		Usage: "number of classes to list (-1 for all)",
	}
	cborFlag = cli.StringFlag{
		Name:  "cbor",
		Usage: "write the census as CBOR to `FILE`",
	}
	dbFlag = cli.StringFlag{
		Name:  "db",
		Usage: "append the census to the SQLite history in `FILE`",
	}
)

var (
	runCommand = cli.Command{
		Action:    runImage,
		Name:      "run",
		Usage:     "Load an image and run it until it quits",
		ArgsUsage: "[image]",
		Flags:     []cli.Flag{stepsFlag, profileFlag},
	}
	infoCommand = cli.Command{
		Action:    showInfo,
		Name:      "info",
		Usage:     "Print an image's header and object summary",
		ArgsUsage: "[image]",
		Flags:     []cli.Flag{topFlag},
	}
	censusCommand = cli.Command{
		Action:    takeCensus,
		Name:      "census",
		Usage:     "Count the instances of every class in an image",
		ArgsUsage: "[image]",
		Flags:     []cli.Flag{topFlag, cborFlag, dbFlag},
		Description: `
The census lists classes by instance count. With --db the counts are also
stored so growth can be compared across runs.`,
	}
	inspectCommand = cli.Command{
		Action:    inspectObject,
		Name:      "inspect",
		Usage:     "Show the special objects array or one of its entries",
		ArgsUsage: "[image]",
		Flags:     []cli.Flag{specialFlag, depthFlag},
	}
	bootstrapCommand = cli.Command{
		Action:    writeBootstrap,
		Name:      "bootstrap",
		Usage:     "Write a minimal image that computes 3 + 4 and quits",
		ArgsUsage: "<output>",
	}
)

// config is the manifest loaded in Before.
var config *manifest.Manifest

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gosqueak"
	app.Usage = "a Squeak virtual machine"
	app.HideVersion = true
	app.Flags = []cli.Flag{configFlag, verboseFlag}
	app.Commands = []cli.Command{runCommand, infoCommand, inspectCommand, censusCommand, bootstrapCommand}
	app.Before = func(ctx *cli.Context) error {
		var err error
		if config, err = loadConfig(ctx.GlobalString(configFlag.Name)); err != nil {
			return err
		}
		verbosity := config.Log.Verbosity
		if ctx.GlobalBool(verboseFlag.Name) {
			verbosity = 2
		}
		if path := config.LogFile(); path != "" {
			commonlog.Configure(verbosity, &path)
		} else {
			commonlog.Configure(verbosity, nil)
		}
		return nil
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

// imageArg returns the image named on the command line, falling back to
// the configured one.
func imageArg(ctx *cli.Context) (string, error) {
	if p := ctx.Args().First(); p != "" {
		return p, nil
	}
	if p := config.ImagePath(); p != "" {
		return p, nil
	}
	return "", errors.New("no image given and none configured")
}

func loadImage(ctx *cli.Context) (*vm.Image, string, error) {
	path, err := imageArg(ctx)
	if err != nil {
		return nil, "", err
	}
	img, err := vm.LoadImage(path, config.MemoryOptions())
	if err != nil {
		return nil, "", err
	}
	return img, path, nil
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func runImage(ctx *cli.Context) error {
	img, path, err := loadImage(ctx)
	if err != nil {
		return err
	}

	w, h := img.Header.WindowSize()
	if w == 0 || h == 0 {
		w, h = config.Display.Width, config.Display.Height
	}
	screen := host.NewHeadless(w, h)
	screen.SetFullScreen(config.Display.FullScreen || img.Header.FullScreen)

	opts := config.Options()
	if opts.ImageName == "" {
		opts.ImageName = path
	}
	if exe, err := os.Executable(); err == nil {
		opts.VMPath = filepath.Dir(exe) + string(filepath.Separator)
	}
	opts.Display = screen
	opts.Input = screen
	opts.Clipboard = host.NewClipboard()

	var profiler *vm.Profiler
	if ctx.Int(profileFlag.Name) > 0 {
		profiler = vm.NewProfiler()
		profiler.OnHot = func(mp *vm.MethodProfile) {
			log.Debugf("hot method %s", img.Memory.Names().Describe(mp.Selector))
		}
		opts.Profiler = profiler
	}

	in := vm.NewInterpreter(img.Memory, opts)
	screen.StartNotifier()
	defer screen.StopNotifier()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer func() {
		signal.Stop(interrupts)
		close(interrupts)
	}()
	go func() {
		for range interrupts {
			log.Notice("user interrupt")
			in.Interrupt()
		}
	}()

	if steps := ctx.Int(stepsFlag.Name); steps > 0 {
		err = in.RunSteps(steps)
	} else {
		err = in.Run()
	}
	stats := in.Stats()
	log.Infof("%d bytecodes, %d sends, %d primitives (%d failed), %d process switches",
		stats.Bytecodes, stats.Sends, stats.PrimitiveCalls, stats.PrimitiveFailures, stats.ProcessSwitches)
	if profiler != nil {
		printProfile(ctx, img.Memory, profiler.TopMethods(ctx.Int(profileFlag.Name)))
	}
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("%s: %s", path, err), 2)
	}
	return nil
}

func printProfile(ctx *cli.Context, mem *vm.Memory, top []vm.MethodProfile) {
	names := mem.Names()
	out := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(out, "invocations\tprimitive\tmethod")
	for _, mp := range top {
		fmt.Fprintf(out, "%d\t%d\t%s>>%s\n", mp.Invocations, mp.PrimitiveHits,
			names.ClassName(mp.Receiver), strings.TrimPrefix(names.Describe(mp.Selector), "#"))
	}
	out.Flush()
}

// ---------------------------------------------------------------------------
// inspect
// ---------------------------------------------------------------------------

func inspectObject(ctx *cli.Context) error {
	img, _, err := loadImage(ctx)
	if err != nil {
		return err
	}
	mem := img.Memory
	target := mem.SpecialObjects()
	if i := ctx.Int(specialFlag.Name); i >= 0 {
		if i >= vm.SpecialObjectsSize {
			return cli.NewExitError(fmt.Sprintf("inspect: special index %d out of range", i), 1)
		}
		target = mem.Special(i)
	}
	r := vm.NewInspector(mem).InspectDepth(target, ctx.Int(depthFlag.Name))
	fmt.Fprint(ctx.App.Writer, r.String())
	return nil
}

// ---------------------------------------------------------------------------
// info
// ---------------------------------------------------------------------------

func showInfo(ctx *cli.Context) error {
	img, path, err := loadImage(ctx)
	if err != nil {
		return err
	}
	out := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	hd := img.Header
	w, h := hd.WindowSize()
	fmt.Fprintf(out, "image\t%s\n", path)
	fmt.Fprintf(out, "version\t%d\n", hd.Version)
	fmt.Fprintf(out, "byte order\t%s\n", byteOrder(hd.Swapped))
	fmt.Fprintf(out, "object data\t%d bytes\n", hd.EndOfMemory)
	fmt.Fprintf(out, "objects\t%d (%d skipped)\n", img.Objects, img.Skipped)
	fmt.Fprintf(out, "window\t%dx%d fullscreen=%t\n", w, h, hd.FullScreen)

	mem := img.Memory
	names := mem.Names()
	fmt.Fprintf(out, "nil\t%s\n", names.Describe(mem.Nil()))
	for _, sp := range []struct {
		label string
		index int
	}{
		{"Array", vm.SpecialClassArray},
		{"String", vm.SpecialClassString},
		{"Float", vm.SpecialClassFloat},
		{"MethodContext", vm.SpecialClassMethodContext},
		{"Process", vm.SpecialClassProcess},
	} {
		fmt.Fprintf(out, "special %s\t%s\n", sp.label, names.ClassName(mem.Special(sp.index)))
	}
	if err := out.Flush(); err != nil {
		return err
	}

	r := census.Take(mem, path)
	fmt.Fprintf(ctx.App.Writer, "\n%d classes in use\n", len(r.Entries))
	return printEntries(ctx, r.Top(ctx.Int(topFlag.Name)))
}

func byteOrder(swapped bool) string {
	if swapped {
		return "little-endian"
	}
	return "big-endian"
}

// ---------------------------------------------------------------------------
// census
// ---------------------------------------------------------------------------

func takeCensus(ctx *cli.Context) error {
	img, path, err := loadImage(ctx)
	if err != nil {
		return err
	}
	r := census.Take(img.Memory, path)

	if file := ctx.String(cborFlag.Name); file != "" {
		data, err := census.MarshalReport(r)
		if err != nil {
			return errors.Wrap(err, "encode census")
		}
		if err := os.WriteFile(file, data, 0644); err != nil {
			return errors.Wrap(err, "write census")
		}
	}

	db := ctx.String(dbFlag.Name)
	if db == "" {
		db = config.CensusDatabase()
	}
	if db != "" {
		store, err := census.OpenStore(db)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(r); err != nil {
			return err
		}
	}

	fmt.Fprintf(ctx.App.Writer, "census %s: %d objects, %d words\n", r.ID, r.Objects, r.Words)
	return printEntries(ctx, r.Top(ctx.Int(topFlag.Name)))
}

func printEntries(ctx *cli.Context, entries []census.Entry) error {
	out := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(out, "instances\twords\tclass\t")
	for _, e := range entries {
		fmt.Fprintf(out, "%d\t%d\t%s\t\n", e.Instances, e.Words, e.Class)
	}
	return out.Flush()
}

// ---------------------------------------------------------------------------
// bootstrap
// ---------------------------------------------------------------------------

func writeBootstrap(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return cli.NewExitError("bootstrap: output path required", 1)
	}
	b := vm.NewBootstrap(config.MemoryOptions())
	b.Start(b.HelloMethod(), b.Mem.Nil())
	return vm.SaveImage(path, b.Mem, vm.ImageWriterOptions{
		WindowWidth:  config.Display.Width,
		WindowHeight: config.Display.Height,
	})
}
