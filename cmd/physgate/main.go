package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/venlab/physgate/internal/config"
	"github.com/venlab/physgate/internal/logger"
	"github.com/venlab/physgate/internal/reporting"
	"github.com/venlab/physgate/pkg/gate"
	"github.com/venlab/physgate/pkg/postsim"
	"github.com/venlab/physgate/pkg/sim"
	"github.com/venlab/physgate/pkg/trace"
)

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Printf("Critical error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.GetLogger(cfg.Logging.Level)
	log.Info("Logger initialized", "level", cfg.Logging.Level)

	if len(os.Args) < 2 {
		log.Fatal("usage: physgate <contract.json>")
	}
	payload, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal("Failed to read contract", "path", os.Args[1], "error", err)
	}

	opts := sim.Options{
		Mode:        sim.Mode(cfg.Engine.Mode),
		Step:        cfg.Engine.Step,
		ATol:        cfg.Engine.ATol,
		RTol:        cfg.Engine.RTol,
		SampleEvery: cfg.Engine.SampleEvery,
		HardContact: cfg.Engine.HardContact,
	}

	mgr := sim.NewManager(*log, opts)
	if err := mgr.Initialize(payload); err != nil {
		var gateErr *gate.Error
		if errors.As(err, &gateErr) {
			printGateFailure(gateErr)
			os.Exit(2)
		}
		log.Fatal("Failed to initialize pipeline", "error", err)
	}

	if err := mgr.Run(); err != nil {
		log.Fatal("Simulation failed", "error", err)
	}

	tr := mgr.Trace()
	acc := mgr.Acceptance()
	printSummary(tr, acc)

	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			log.Fatal("Failed to create output directory", "path", cfg.Output.Dir, "error", err)
		}
		enc := trace.Encoding(cfg.Output.Encoding)
		ext := "json"
		if enc == trace.EncodingBinary {
			ext = "bin"
		}
		outPath := filepath.Join(cfg.Output.Dir, "trace."+ext)
		f, err := os.Create(outPath)
		if err != nil {
			log.Fatal("Failed to create trace file", "path", outPath, "error", err)
		}
		if err := tr.Encode(f, enc); err != nil {
			f.Close()
			log.Fatal("Failed to encode trace", "error", err)
		}
		f.Close()
		log.Info("Trace written", "path", outPath)

		if cfg.Output.Plots {
			pr := reporting.NewPlotRenderer(cfg.Output.Dir, *log)
			if err := pr.GenerateEnergyVsTimePlot(tr); err != nil {
				log.Warn("Energy plot failed", "error", err)
			}
			if last := tr.Final(); last != nil {
				for _, b := range last.Bodies {
					if err := pr.GenerateTrajectoryPlot(tr, b.ID); err != nil {
						log.Warn("Trajectory plot failed", "body", b.ID, "error", err)
					}
				}
			}
		}
	}

	if !acc.Success {
		os.Exit(3)
	}
}

// printGateFailure renders the Pre-Sim Gate report as a table.
func printGateFailure(gateErr *gate.Error) {
	fmt.Println("Pre-Sim Gate rejected the contract:")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Code", "Location", "Message", "Suggestion"})
	for _, issue := range gateErr.Report.Errors {
		_ = table.Append([]string{issue.Code, issue.Location, issue.Message, issue.Suggestion})
	}
	_ = table.Render()
}

// printSummary renders the acceptance report and run statistics.
func printSummary(tr *trace.Trace, acc *postsim.Report) {
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Check", "Status", "Detail"})
	for _, chk := range acc.Checks {
		status := "PASS"
		if !chk.Passed {
			status = "FAIL"
		}
		_ = table.Append([]string{chk.Name, status, chk.Detail})
	}
	_ = table.Render()

	sum := tr.Summarize()
	p.Printf("score: %.3f  samples: %d  steps: %d (rejected %d)  end: %s\n",
		acc.Score, len(tr.Samples), tr.Stats.Steps, tr.Stats.RejectedSteps, string(tr.EndReason))
	p.Printf("%s\n", sum)
}
