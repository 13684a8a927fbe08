package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/pcreg/registration"
	ioreg "github.com/kwv/pcreg/registration/debugviz"
	"github.com/kwv/pcreg/registration/io"
	"github.com/kwv/pcreg/registration/spatialindex"
	"github.com/kwv/pcreg/registration/telemetry"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	configFile  = flag.String("config", "", "Path to YAML config file (defaults are used if omitted)")
	voxelSize   = flag.Float64("voxel-size", 0.05, "Voxel size used for default config derivation, ignored with -config")
	sourceFile  = flag.String("source", "", "Path to the source point cloud (xyz text format)")
	targetFile  = flag.String("target", "", "Path to the target point cloud (xyz text format)")
	estimate    = flag.Bool("estimate", false, "Run the full pipeline on -source/-target and print the solution")
	matchOnly   = flag.Bool("match-only", false, "Run descriptor extraction, correspondence search and pruning only, skip solving")
	renderOut   = flag.String("render", "", "Write an SVG/PNG debug render of the last run to this path (extension selects format)")
	geojsonOut  = flag.String("geojson", "", "Write a GeoJSON export of the last run's keypoints to this path")
	useGonumKD  = flag.Bool("gonum-kdtree", true, "Use the gonum kd-tree spatial index backend instead of linear scan")
	httpMode    = flag.Bool("http", false, "Run an HTTP server exposing /health and /solution")
	httpPort    = flag.Int("http-port", 8080, "HTTP server port")
	mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker URL; enables telemetry publishing when set")
	jobID       = flag.String("job-id", "default", "Identifier used for telemetry publishing and the /solution endpoint")
	jobsFile    = flag.String("jobs", "", "Path to a YAML config file with a top-level jobs list; batch-registers every pair")
)

func main() {
	flag.Parse()
	fmt.Printf("pcreg version: %s\n", Version)

	cfg, err := loadConfigFromFlags()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	backend := spatialindex.BackendLinear
	if *useGonumKD {
		backend = spatialindex.BackendGonum
	}

	publisher := buildPublisher()
	app := NewApp(cfg, publisher)

	switch {
	case *jobsFile != "":
		runBatch(app, backend)
	case *estimate || *matchOnly:
		runPipeline(app, cfg, backend)
	case *httpMode:
		if err := app.runHTTP(*httpPort); err != nil {
			log.Fatalf("http server: %v", err)
		}
	default:
		fmt.Println("pcreg: rigid point-cloud registration")
		fmt.Println("Use -estimate -source=a.xyz -target=b.xyz to run the full pipeline")
		fmt.Println("Use -match-only to stop after correspondence search and pruning")
		fmt.Println("Use -render=out.svg or -geojson=out.geojson to export a debug view")
		fmt.Println("Use -http to serve /health and /solution")
		fmt.Println("Use -jobs=batch.yaml to register every source/target pair a config file lists")
	}
}

func loadConfigFromFlags() (registration.Config, error) {
	if *configFile != "" {
		return registration.LoadConfig(*configFile)
	}
	cfg := registration.DefaultConfig(*voxelSize)
	if err := cfg.Validate(); err != nil {
		return registration.Config{}, err
	}
	return cfg, nil
}

func buildPublisher() *telemetry.Publisher {
	if *mqttBroker == "" {
		return telemetry.NewPublisher(nil)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*mqttBroker)
	opts.SetClientID("pcreg")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("telemetry: MQTT connect failed, publishing disabled: %v", token.Error())
		return telemetry.NewPublisher(nil)
	}
	return telemetry.NewPublisher(client)
}

func runPipeline(app *App, cfg registration.Config, backend spatialindex.Backend) {
	if *sourceFile == "" || *targetFile == "" {
		log.Fatal("-source and -target are required")
	}

	src, err := io.LoadXYZ(*sourceFile)
	if err != nil {
		log.Fatalf("loading source cloud: %v", err)
	}
	tgt, err := io.LoadXYZ(*targetFile)
	if err != nil {
		log.Fatalf("loading target cloud: %v", err)
	}

	pipeline, err := registration.NewPipeline(cfg, backend, 1)
	if err != nil {
		log.Fatalf("building pipeline: %v", err)
	}

	if *matchOnly {
		pipeline.Match(src, tgt, registration.Vec3{}, registration.Vec3{})
		fmt.Printf("source keypoints: %d\n", pipeline.SourceKeypointCount())
		fmt.Printf("target keypoints: %d\n", pipeline.TargetKeypointCount())
		fmt.Printf("correspondences:  %d\n", pipeline.CorrespondenceCount())
		fmt.Printf("pruned:           %d\n", pipeline.PrunedCorrespondenceCount())

		if *renderOut != "" || *geojsonOut != "" {
			exportDebug(pipeline)
		}
		return
	}

	sol := pipeline.Estimate(src, tgt, registration.Vec3{}, registration.Vec3{})

	fmt.Printf("source keypoints: %d\n", pipeline.SourceKeypointCount())
	fmt.Printf("target keypoints: %d\n", pipeline.TargetKeypointCount())
	fmt.Printf("correspondences:  %d\n", pipeline.CorrespondenceCount())
	fmt.Printf("pruned:           %d\n", pipeline.PrunedCorrespondenceCount())
	fmt.Printf("valid:            %v\n", sol.Valid)
	if sol.Valid {
		fmt.Printf("rotation:         %v\n", sol.Rotation)
		fmt.Printf("translation:      %+v\n", sol.Translation)
	}

	app.RecordSolution(*jobID, sol, pipeline.CorrespondenceCount(), pipeline.PrunedCorrespondenceCount(), time.Now().Unix())

	if *renderOut != "" || *geojsonOut != "" {
		exportDebug(pipeline)
	}
}

// runBatch loads a Config plus its jobs list from -jobs, registers every
// pair sequentially via registration.RunJobs, and reports each result
// through the same App/telemetry path runPipeline uses for a single run.
func runBatch(app *App, backend spatialindex.Backend) {
	cfg, jobSpecs, err := registration.LoadBatchConfig(*jobsFile)
	if err != nil {
		log.Fatalf("loading jobs config: %v", err)
	}
	if len(jobSpecs) == 0 {
		log.Fatalf("jobs config %s has no jobs", *jobsFile)
	}

	jobs := make([]registration.Job, len(jobSpecs))
	for i, js := range jobSpecs {
		src, err := io.LoadXYZ(js.SourcePath)
		if err != nil {
			log.Fatalf("loading source cloud for job %s: %v", js.ID, err)
		}
		tgt, err := io.LoadXYZ(js.TargetPath)
		if err != nil {
			log.Fatalf("loading target cloud for job %s: %v", js.ID, err)
		}
		jobs[i] = registration.Job{ID: js.ID, Source: src, Target: tgt}
	}

	results, err := registration.RunJobs(cfg, backend, 1, jobs)
	if err != nil {
		log.Fatalf("batch run: %v", err)
	}

	now := time.Now().Unix()
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("%s: error: %v\n", r.ID, r.Err)
			continue
		}
		fmt.Printf("%s: valid=%v translation=%+v\n", r.ID, r.Solution.Valid, r.Solution.Translation)
		app.RecordSolution(r.ID, r.Solution, 0, 0, now)
	}
}

func exportDebug(p *registration.Pipeline) {
	scene := ioreg.Scene{
		Source:  p.SourceDescriptors(),
		Target:  p.TargetDescriptors(),
		Matches: p.PrunedCorrespondences(),
		Padding: 20,
	}

	if *renderOut != "" {
		f, err := os.Create(*renderOut)
		if err != nil {
			log.Printf("pcreg: creating %s: %v", *renderOut, err)
		} else {
			defer f.Close()
			var renderErr error
			if hasSuffix(*renderOut, ".png") {
				renderErr = scene.RenderPNG(f)
			} else {
				renderErr = scene.RenderSVG(f)
			}
			if renderErr != nil {
				log.Printf("pcreg: rendering %s: %v", *renderOut, renderErr)
			}
		}
	}

	if *geojsonOut != "" {
		fc := scene.ExportGeoJSON()
		data, err := fc.MarshalJSON()
		if err != nil {
			log.Printf("pcreg: marshaling geojson: %v", err)
		} else if err := os.WriteFile(*geojsonOut, data, 0644); err != nil {
			log.Printf("pcreg: writing %s: %v", *geojsonOut, err)
		}
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
