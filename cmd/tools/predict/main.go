// Command predict scores a single sensor reading against a model artifact
// without touching any remote store. Useful for validating an artifact
// before deployment and for debugging feature construction.
//
// Usage:
//
//	predict -model irrigation_model.json -humidity 40 -temperature 38 -soil 20
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cropwise/internal/artifact"
	"cropwise/internal/features"
	"cropwise/internal/inference"
	"cropwise/internal/types"
)

func main() {
	var (
		modelPath   = flag.String("model", "irrigation_model.json", "path to the model artifact bundle")
		humidity    = flag.Float64("humidity", 0, "humidity percent (0-100)")
		temperature = flag.Float64("temperature", 0, "temperature in degrees Celsius")
		soil        = flag.Float64("soil", 0, "soil moisture percent (0-100)")
		district    = flag.String("district", "Coimbatore", "farm district")
		zone        = flag.String("zone", "Western Zone", "farm zone")
		season      = flag.String("season", "southwest_monsoon", "season")
		rainfall    = flag.Float64("rainfall", 0.5, "rainfall prediction for the next hour in mm")
		showVector  = flag.Bool("vector", false, "print the feature vector alongside the class")
	)
	flag.Parse()

	if err := run(*modelPath, types.RawReading{
		Humidity:     *humidity,
		Temperature:  *temperature,
		SoilMoisture: *soil,
	}, features.Context{
		District:       *district,
		Zone:           *zone,
		Season:         *season,
		RainfallNext1H: *rainfall,
	}, *showVector); err != nil {
		fmt.Fprintf(os.Stderr, "predict: %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath string, reading types.RawReading, fctx features.Context, showVector bool) error {
	if err := types.ValidateReading(reading); err != nil {
		return err
	}

	bundle, err := artifact.Load(modelPath)
	if err != nil {
		return err
	}

	builder, err := features.NewBuilder(bundle, fctx)
	if err != nil {
		return err
	}
	engine := inference.NewEngine(bundle)

	vec, err := builder.Build(reading)
	if err != nil {
		return err
	}
	class, err := engine.Predict(vec)
	if err != nil {
		return err
	}

	out := map[string]any{
		"irrigation_class": class,
		"model_version":    bundle.Version,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	if showVector {
		cols := make(map[string]float64, len(bundle.FeatureColumns))
		for i, name := range bundle.FeatureColumns {
			cols[name] = vec[i]
		}
		out["features"] = cols
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
