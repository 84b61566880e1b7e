package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/paulmach/orb"

	"github.com/kwv/punctamesh/lgcp"
)

// App encapsulates the pipeline state and dependencies
type App struct {
	Config     *lgcp.Config
	Engine     lgcp.InferenceEngine
	Publisher  *lgcp.Publisher
	MQTTClient mqtt.Client

	// CLI Flags (effectively dependencies)
	ConfigFile     string
	PointsFile     string
	RegionFile     string
	BufferFile     string
	CovariateFiles string
	OutputDir      string
	Seed           int64
	SimSteps       int
	Predict        bool
	Residuals      bool
	GridNX         int
	GridNY         int
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.PointsFile = opts.PointsFile
	a.RegionFile = opts.RegionFile
	a.BufferFile = opts.BufferFile
	a.CovariateFiles = opts.CovariateFiles
	a.OutputDir = opts.OutputDir
	a.Seed = opts.Seed
	a.SimSteps = opts.SimSteps
	a.Predict = opts.Predict
	a.Residuals = opts.Residuals
	a.GridNX = opts.GridNX
	a.GridNY = opts.GridNY
}

// RunSimulate runs the crowded-cell particle simulation and writes the
// resulting point pattern, domain and buffer regions to the output
// directory, ready for a -fit run.
func (a *App) RunSimulate() {
	cfg := lgcp.DefaultSimulationConfig()
	if a.Seed != 0 {
		cfg.RNG = rand.New(rand.NewSource(a.Seed))
	}
	frame := a.frame()

	sim := lgcp.NewSimulation(cfg)
	log.Printf("Simulating %d steps with %d crowders", a.SimSteps, len(sim.Crowders))
	sim.Run(a.SimSteps)

	pattern := sim.Pattern(frame)
	domain, err := sim.DomainRegion(frame, 64)
	if err != nil {
		log.Fatalf("Building domain region: %v", err)
	}
	buffer, err := sim.BufferRegion(frame, 1.5, 48)
	if err != nil {
		log.Fatalf("Building buffer region: %v", err)
	}

	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		log.Fatalf("Creating output directory: %v", err)
	}
	if err := lgcp.SavePoints(filepath.Join(a.OutputDir, "points.json"), pattern); err != nil {
		log.Fatalf("Writing points: %v", err)
	}
	if err := lgcp.SaveRegion(filepath.Join(a.OutputDir, "region.json"), domain); err != nil {
		log.Fatalf("Writing region: %v", err)
	}
	if err := lgcp.SaveRegion(filepath.Join(a.OutputDir, "buffer.json"), buffer); err != nil {
		log.Fatalf("Writing buffer: %v", err)
	}
	fmt.Printf("Simulated %d particles into %s\n", len(pattern.Points), a.OutputDir)
}

// RunFit loads the inputs, builds the analysis session, assembles the
// model, calls the inference engine and exports the posterior summaries.
// With -predict it also exports a posterior intensity grid, and with
// -residuals the gridded residual diagnostic.
func (a *App) RunFit() {
	config, err := lgcp.LoadConfig(a.ConfigFile)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	a.Config = config

	domain, buffer, pattern, covs := a.loadInputs(config)

	log.Printf("Building mesh (h_in=%g h_out=%g cutoff=%g)",
		config.Mesh.InnerMaxEdge, config.Mesh.OuterMaxEdge, config.Mesh.Cutoff)
	sess, err := lgcp.NewSession(domain, buffer, config.Mesh.MeshConfig())
	if err != nil {
		log.Fatalf("Building session: %v", err)
	}
	log.Printf("Mesh has %d nodes, %d triangles", sess.Mesh.NumNodes(), len(sess.Mesh.Triangles))

	if err := sess.CheckPattern(pattern); err != nil {
		log.Fatalf("Checking point pattern: %v", err)
	}
	covNames := make([]string, len(covs))
	for i, c := range covs {
		if err := sess.CheckCovariate(c); err != nil {
			log.Fatalf("Checking covariate %s: %v", c.Name(), err)
		}
		covNames[i] = c.Name()
	}

	design, err := lgcp.Discretize(sess, pattern, covs)
	if err != nil {
		log.Fatalf("Discretizing likelihood: %v", err)
	}
	log.Printf("Design has %d rows (%d observed)", len(design.Rows), design.NumObserved)

	spec := lgcp.NewModelSpec().AddIntercept()
	for _, name := range covNames {
		spec.AddFixed(name, name)
	}
	spec.AddField("field", config.Field.FieldConfig())
	model, err := spec.Build(covNames)
	if err != nil {
		log.Fatalf("Building model: %v", err)
	}
	inputs, err := model.Assemble(sess, design)
	if err != nil {
		log.Fatalf("Assembling model inputs: %v", err)
	}

	if a.Engine == nil {
		if config.Engine.URL == "" {
			log.Fatalf("engine.url is not configured")
		}
		a.Engine = lgcp.NewHTTPEngine(config.Engine.URL, lgcp.WithEngineThreads(config.Engine.Threads))
	}
	log.Printf("Fitting (timeout %s)", config.Engine.Timeout())
	fit, err := lgcp.FitWithTimeout(context.Background(), a.Engine, inputs, config.Engine.Timeout())
	if err != nil {
		log.Fatalf("Fitting model: %v", err)
	}

	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		log.Fatalf("Creating output directory: %v", err)
	}
	marginalsPath := filepath.Join(a.OutputDir, "marginals.json")
	if err := lgcp.ExportMarginals(marginalsPath, fit); err != nil {
		log.Fatalf("Exporting marginals: %v", err)
	}
	fmt.Printf("Wrote %s\n", marginalsPath)

	a.initPublisher(config)
	if a.Publisher != nil {
		if err := a.Publisher.PublishFit(fit); err != nil {
			log.Printf("Warning: publishing fit summary: %v", err)
		}
	}

	if !a.Predict && !a.Residuals {
		return
	}

	predCfg := config.Predictor.PredictorConfig()
	if a.Seed != 0 {
		predCfg.Seed = a.Seed
	}
	pred, err := lgcp.NewPredictor(sess, model, covs, fit, predCfg)
	if err != nil {
		log.Fatalf("Building predictor: %v", err)
	}

	if a.Predict {
		preds, err := pred.PredictGrid(domain.Bound(), a.GridNX, a.GridNY, lgcp.FormulaIntensity)
		if err != nil {
			log.Fatalf("Predicting intensity grid: %v", err)
		}
		path := filepath.Join(a.OutputDir, "intensity.json")
		if err := lgcp.ExportPredictions(path, preds); err != nil {
			log.Fatalf("Exporting predictions: %v", err)
		}
		fmt.Printf("Wrote %s (%d pixels)\n", path, len(preds))
	}

	if a.Residuals {
		rows, cols := config.Residuals.Shape()
		cells, err := lgcp.ComputeResiduals(sess, pred, pattern, domain.Bound(), rows, cols)
		if err != nil {
			log.Fatalf("Computing residuals: %v", err)
		}
		path := filepath.Join(a.OutputDir, "residuals.json")
		if err := lgcp.ExportResiduals(path, cells); err != nil {
			log.Fatalf("Exporting residuals: %v", err)
		}
		fmt.Printf("Wrote %s (%d cells)\n", path, len(cells))
		if a.Publisher != nil {
			if err := a.Publisher.PublishResiduals(cells); err != nil {
				log.Printf("Warning: publishing residuals: %v", err)
			}
		}
	}
}

func (a *App) loadInputs(config *lgcp.Config) (domain, buffer *lgcp.Region, pattern *lgcp.PointPattern, covs []lgcp.Covariate) {
	var err error
	domain, err = lgcp.LoadRegion(a.RegionFile)
	if err != nil {
		log.Fatalf("Loading region: %v", err)
	}
	if a.BufferFile != "" {
		buffer, err = lgcp.LoadRegion(a.BufferFile)
		if err != nil {
			log.Fatalf("Loading buffer: %v", err)
		}
	} else {
		buffer, err = paddedBound(domain, 0.25)
		if err != nil {
			log.Fatalf("Deriving buffer from domain bound: %v", err)
		}
	}
	pattern, err = lgcp.LoadPoints(a.PointsFile)
	if err != nil {
		log.Fatalf("Loading points: %v", err)
	}

	for _, file := range strings.Split(a.CovariateFiles, ",") {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		raster, err := lgcp.LoadRaster(file)
		if err != nil {
			log.Fatalf("Loading covariate %s: %v", file, err)
		}
		if err := raster.StandardizeWithin(domain); err != nil {
			log.Fatalf("Standardizing covariate %s: %v", raster.RasterName, err)
		}
		covs = append(covs, raster)
	}
	return domain, buffer, pattern, covs
}

func (a *App) initPublisher(config *lgcp.Config) {
	if a.Publisher != nil || config.MQTT == nil {
		return
	}
	client, err := lgcp.ConnectMQTT(config.MQTT)
	if err != nil {
		log.Printf("Warning: MQTT unavailable: %v", err)
		return
	}
	if client == nil {
		return
	}
	a.MQTTClient = client
	a.Publisher = lgcp.NewPublisher(client, config.MQTT.PublishPrefix)
}

func (a *App) frame() string {
	if config, err := lgcp.LoadConfig(a.ConfigFile); err == nil && config.Frame != "" {
		return config.Frame
	}
	return "pixels"
}

// paddedBound returns a rectangular buffer region: the domain's bounding
// box padded on every side by pad times the larger span.
func paddedBound(domain *lgcp.Region, pad float64) (*lgcp.Region, error) {
	b := domain.Bound()
	sx, sy := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	m := sx
	if sy > m {
		m = sy
	}
	d := pad * m
	ring := orb.Ring{
		{b.Min[0] - d, b.Min[1] - d},
		{b.Max[0] + d, b.Min[1] - d},
		{b.Max[0] + d, b.Max[1] + d},
		{b.Min[0] - d, b.Max[1] + d},
		{b.Min[0] - d, b.Min[1] - d},
	}
	return lgcp.NewRegion(domain.Frame, orb.MultiPolygon{orb.Polygon{ring}})
}
