// Command curve-plot renders a stored light curve to a PNG file, for quick
// inspection without the viewer API.
package main

import (
	"flag"
	"fmt"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/meridian-astro/photopipe/internal/lemondb"
	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/timeutil"
)

var (
	dbPath = flag.String("db", "lemon.db", "Path to the LEMONdB sqlite file")
	star   = flag.Int64("star", 0, "Star id")
	system = flag.String("system", "Johnson", "Photometric system")
	band   = flag.String("band", "V", "Band")
	out    = flag.String("out", "curve.png", "Output PNG path")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	db, err := lemondb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	pb := photom.Passband{System: *system, Band: *band}
	curve, err := db.GetLightCurve(photom.StarID(*star), pb)
	if err != nil {
		return err
	}

	pts := make(plotter.XYs, 0, len(curve.Points))
	for _, p := range curve.Points {
		// Negate so brighter plots upward, the way astronomers read
		// magnitude axes.
		pts = append(pts, plotter.XY{X: timeutil.UnixToJulian(p.UnixTime), Y: -p.Mag})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Star %d (%s)", *star, pb)
	p.X.Label.Text = "JD"
	p.Y.Label.Text = "-Δmag"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	p.Add(scatter)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, *out); err != nil {
		return err
	}
	log.Printf("wrote %s (%d points)", *out, len(pts))
	return nil
}
