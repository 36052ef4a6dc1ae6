package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"pvmodel/pkg/curve"
	"pvmodel/pkg/module"
	"pvmodel/pkg/scenario"
	"pvmodel/pkg/util"
)

var (
	csvPath  string
	plotPath string
	verbose  bool
)

func main() {
	root := &cobra.Command{
		Use:           "pvmodel",
		Short:         "PV module I-V curve calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	run := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Compute the module curve described by a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	run.Flags().StringVar(&csvPath, "csv", "", "write the module curve to a CSV file")
	run.Flags().StringVar(&plotPath, "plot", "", "write I-V and P-V plots, e.g. out.png writes out_iv.png and out_pv.png")
	run.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	root.AddCommand(run)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: creating logger:", err)
		os.Exit(1)
	}
	return logger.Sugar()
}

func runScenario(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading scenario file: %w", err)
	}

	sc, err := scenario.Parse(content)
	if err != nil {
		return err
	}
	log.Infow("scenario parsed", "title", sc.Title, "layout", sc.Layout.Type)

	mod, err := sc.Build()
	if err != nil {
		return err
	}
	log.Infow("module built",
		"cells", mod.CellCount(),
		"substrings", len(mod.Topology()),
		"vbypass", mod.VBypass(),
	)

	printSummary(sc.Title, mod)

	if csvPath != "" {
		if err := writeCSV(csvPath, mod); err != nil {
			return err
		}
		log.Infow("curve written", "path", csvPath)
	}
	if plotPath != "" {
		iv, pv, err := writePlots(plotPath, mod)
		if err != nil {
			return err
		}
		log.Infow("plots written", "iv", iv, "pv", pv)
	}
	return nil
}

func printSummary(title string, mod *module.Module) {
	if title == "" {
		title = "PV module"
	}
	fmt.Printf("\n%s\n", title)
	fmt.Println("================")

	pmp, vmp, imp := mod.MaxPower()
	fmt.Printf("Isc = %s\n", util.FormatValueFactor(mod.Isc(), "A"))
	fmt.Printf("Voc = %s\n", util.FormatValueFactor(mod.Voc(), "V"))
	fmt.Printf("Pmp = %s at %s / %s\n",
		util.FormatValueFactor(pmp, "W"),
		util.FormatValueFactor(vmp, "V"),
		util.FormatValueFactor(imp, "A"))

	isub, vsub := mod.SubstringCurves()
	fmt.Printf("\nSubstrings: %d\n", len(isub))
	for k := range isub {
		c := curve.Curve{I: isub[k], V: vsub[k]}
		fmt.Printf("  substring %d: Isc = %s, Voc = %s\n", k,
			util.FormatValueFactor(c.Isc(), "A"),
			util.FormatValueFactor(c.Voc(), "V"))
	}

	ee := mod.Irradiances()
	shaded := 0
	for _, e := range ee {
		if e < 1 {
			shaded++
		}
	}
	if shaded > 0 {
		fmt.Printf("\nShaded cells: %d of %d\n", shaded, len(ee))
	}
}

func writeCSV(path string, mod *module.Module) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"V", "I", "P"}); err != nil {
		return err
	}
	iMod, vMod, pMod := mod.Current(), mod.Voltage(), mod.Power()
	for k := range vMod {
		rec := []string{
			strconv.FormatFloat(vMod[k], 'g', -1, 64),
			strconv.FormatFloat(iMod[k], 'g', -1, 64),
			strconv.FormatFloat(pMod[k], 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// writePlots renders the module I-V and P-V characteristics next to each
// other, clipped to the first quadrant like a datasheet curve.
func writePlots(path string, mod *module.Module) (ivPath, pvPath string, err error) {
	base := path
	if ext := ".png"; len(base) > len(ext) && base[len(base)-len(ext):] == ext {
		base = base[:len(base)-len(ext)]
	}
	ivPath = base + "_iv.png"
	pvPath = base + "_pv.png"

	iMod, vMod, pMod := mod.Current(), mod.Voltage(), mod.Power()

	if err = savePlot(ivPath, "Module I-V Characteristics",
		"Module Voltage, V [V]", "Module Current, I [A]", vMod, iMod); err != nil {
		return "", "", err
	}
	if err = savePlot(pvPath, "Module P-V Characteristics",
		"Module Voltage, V [V]", "Module Power, P [W]", vMod, pMod); err != nil {
		return "", "", err
	}
	return ivPath, pvPath, nil
}

func savePlot(path, title, xlabel, ylabel string, xs, ys []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0, len(xs))
	for k := range xs {
		if xs[k] < 0 || ys[k] < 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: xs[k], Y: ys[k]})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("plotting %s: %w", path, err)
	}
	p.Add(line)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
