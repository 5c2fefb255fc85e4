// Command genstream writes a synthetic composite observation stream as CSV
// for load tests and replay demos. Readings drift smoothly per station and a
// configurable share of rows carry injected faults. The same seed always
// yields the same file.
//
// Usage:
//
//	go run ./cmd/genstream -stations 20 -minutes 120 -fault-rate 0.05 -out data/mock/synthetic.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/couchcryptid/station-qc/internal/adapter/csvstream"
	"github.com/couchcryptid/station-qc/internal/domain"
)

// Fault kinds injected into generated rows.
const (
	faultSpike      = "spike"
	faultOutOfRange = "out_of_range"
	faultSensorErr  = "sensor_error"
	faultCalmWind   = "calm_wind"
	faultDryPrecip  = "dry_precip"
	faultStorm      = "storm"
)

var faultKinds = []string{faultSpike, faultOutOfRange, faultSensorErr, faultCalmWind, faultDryPrecip, faultStorm}

const (
	clearSky      = "Clear sky, low wind. No convective storms."
	stormMetadata = "Heavy rain advisory; convective cells"
)

type options struct {
	stations  int
	minutes   int
	faultRate float64
	seed      uint64
	start     time.Time
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	stations := flag.Int("stations", 10, "number of stations")
	minutes := flag.Int("minutes", 60, "minutes of one-per-minute readings per station")
	faultRate := flag.Float64("fault-rate", 0.05, "probability that a row carries an injected fault")
	seed := flag.Uint64("seed", 1, "random seed")
	start := flag.String("start", "2025-12-01T14:00:00Z", "timestamp of the first reading")
	out := flag.String("out", "", "output path (default stdout)")
	flag.Parse()

	startAt, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	opts := options{stations: *stations, minutes: *minutes, faultRate: *faultRate, seed: *seed, start: startAt}
	if err := opts.validate(); err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	tally, err := generate(w, opts)
	if err != nil {
		return err
	}
	log.Printf("wrote %d rows for %d stations", opts.stations*opts.minutes, opts.stations)
	for _, kind := range faultKinds {
		if tally[kind] > 0 {
			log.Printf("  %-13s %d", kind, tally[kind])
		}
	}
	return nil
}

func (o options) validate() error {
	if o.stations < 1 {
		return fmt.Errorf("-stations must be at least 1")
	}
	if o.minutes < 1 {
		return fmt.Errorf("-minutes must be at least 1")
	}
	if o.faultRate < 0 || o.faultRate > 1 {
		return fmt.Errorf("-fault-rate must be within [0,1]")
	}
	return nil
}

// station holds the slowly varying baseline of one site.
type station struct {
	id       string
	baseTemp float64
	baseRH   float64
	baseP    float64
}

// generate writes opts.stations*opts.minutes rows, minute by minute, and
// returns the number of rows per injected fault kind.
func generate(w io.Writer, opts options) (map[string]int, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	sites := make([]station, opts.stations)
	for i := range sites {
		sites[i] = station{
			id:       fmt.Sprintf("S%02d", i+1),
			baseTemp: 15 + rng.Float64()*10,
			baseRH:   45 + rng.Float64()*25,
			baseP:    1008 + rng.Float64()*10,
		}
	}

	cw := csvstream.NewWriter(w)
	tally := map[string]int{}
	temps := make([]float64, len(sites))

	for m := 0; m < opts.minutes; m++ {
		ts := opts.start.Add(time.Duration(m) * time.Minute)
		phase := 2 * math.Pi * float64(m) / (24 * 60)
		for i, s := range sites {
			temps[i] = round1(s.baseTemp + 3*math.Sin(phase) + rng.NormFloat64()*0.2)
		}

		for i, s := range sites {
			values := map[domain.Variable]float64{
				domain.Temperature:   temps[i],
				domain.Humidity:      round1(clamp(s.baseRH+rng.NormFloat64(), 5, 100)),
				domain.Pressure:      round1(s.baseP + rng.NormFloat64()*0.3),
				domain.Precipitation: 0,
				domain.WindSpeed:     round1(2 + rng.Float64()*4),
				domain.WindDirection: math.Floor(rng.Float64() * 360),
			}
			p := domain.NewComposite(s.id, ts, values, neighborTemps(temps, i), clearSky)

			if rng.Float64() < opts.faultRate {
				kind := faultKinds[rng.IntN(len(faultKinds))]
				inject(&p, kind)
				tally[kind]++
			}
			if err := cw.Write(p); err != nil {
				return nil, err
			}
		}
	}
	return tally, cw.Flush()
}

// neighborTemps returns the temperatures of up to two adjacent stations.
func neighborTemps(temps []float64, i int) []float64 {
	var out []float64
	if i > 0 {
		out = append(out, temps[i-1])
	}
	if i+1 < len(temps) {
		out = append(out, temps[i+1])
	}
	return out
}

func inject(p *domain.CompositePacket, kind string) {
	switch kind {
	case faultSpike:
		p.Values[domain.Temperature] += 25
	case faultOutOfRange:
		p.Values[domain.Temperature] = 70
	case faultSensorErr:
		delete(p.Values, domain.Humidity)
		p.Invalid = append(p.Invalid, domain.Humidity)
	case faultCalmWind:
		p.Values[domain.WindSpeed] = 0
		p.Values[domain.WindDirection] = 200
	case faultDryPrecip:
		p.Values[domain.Precipitation] = 2
		p.Values[domain.Humidity] = 20
	case faultStorm:
		p.Values[domain.Precipitation] = 4
		p.Values[domain.Humidity] = 95
		p.Values[domain.Pressure] = 1002
		p.Values[domain.WindSpeed] = 12
		p.Metadata = stormMetadata
	}
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func clamp(x, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, x)) }
